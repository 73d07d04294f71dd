// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identdict

import "fmt"

const (
	// minSizeIndex is the size index every Dict starts at. Smaller indices
	// exist so that the table reads naturally as "largest prime below
	// 2^(i+1)", but are never used for a table.
	minSizeIndex = 4
	maxSizeIndex = len(capacities) - 1
)

// capacities holds the slot counts a Dict moves through as it grows. Entry i
// (for i >= 1) is the largest prime below 2^(i+1). Prime table sizes keep the
// modular reduction of address-derived hashes from clustering on the
// alignment of the allocator.
var capacities = [...]uintptr{
	0:  1,
	1:  3,
	2:  7,
	3:  13,
	4:  31,
	5:  61,
	6:  127,
	7:  251,
	8:  509,
	9:  1021,
	10: 2039,
	11: 4093,
	12: 8191,
	13: 16381,
	14: 32749,
	15: 65521,
	16: 131071,
	17: 262139,
	18: 524287,
	19: 1048573,
	20: 2097143,
	21: 4194301,
	22: 8388593,
	23: 16777213,
	24: 33554393,
	25: 67108859,
	26: 134217689,
	27: 268435399,
	28: 536870909,
	29: 1073741789,
	30: 2147483647,
}

// capacityAt returns the number of slots in a table at the given size index.
func capacityAt(sizeIndex int) uintptr {
	if sizeIndex < 0 || sizeIndex > maxSizeIndex {
		panic(fmt.Sprintf("identdict: size index %d out of range [0,%d]", sizeIndex, maxSizeIndex))
	}
	return capacities[sizeIndex]
}

// maxLoad returns the number of live entries a table of the given capacity
// holds before it must grow. The maximum load factor is 2/3.
func maxLoad(capacity uintptr) uintptr {
	return (capacity * 2) / 3
}

// maxFill returns the number of live entries plus tombstones a table of the
// given capacity tolerates before it is rehashed in place.
func maxFill(capacity uintptr) uintptr {
	return maxLoad(capacity) + capacity/8
}

// sizeIndexFor returns the smallest usable size index that can hold n entries
// without growing.
func sizeIndexFor(n int) int {
	for i := minSizeIndex; i <= maxSizeIndex; i++ {
		if uintptr(n) <= maxLoad(capacities[i]) {
			return i
		}
	}
	panic(fmt.Sprintf("identdict: too many entries: %d", n))
}
