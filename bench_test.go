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

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkDictIter(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapIter))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictIter))
}

func BenchmarkDictSearchHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapSearchHit))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictSearchHit))
	b.Run("impl=identDict,hash=mixed", benchSizes(benchmarkIdentDictMixedSearchHit))
}

func BenchmarkDictSearchMiss(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapSearchMiss))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictSearchMiss))
}

func BenchmarkDictInsertGrow(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapInsertGrow))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictInsertGrow))
}

func BenchmarkDictInsertPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapInsertPreAllocate))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictInsertPreAllocate))
}

func BenchmarkDictInsertReuse(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapInsertReuse))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictInsertReuse))
}

func BenchmarkDictInsertRemove(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapInsertRemove))
	b.Run("impl=identDict", benchSizes(benchmarkIdentDictInsertRemove))
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

func benchmarkRuntimeMapIter(b *testing.B, n int) {
	m := make(map[*node]*node, n)
	for _, k := range makeNodes(n) {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp int
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k.id + v.id
		}
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkIdentDictIter(b *testing.B, n int) {
	d := New[node, node](WithInitialCapacity[node, node](n))
	for _, k := range makeNodes(n) {
		d.Insert(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var tmp int
	for i := 0; i < b.N; i++ {
		d.All(func(k, v *node) bool {
			tmp += k.id + v.id
			return true
		})
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, tmp)
}

func benchmarkRuntimeMapSearchMiss(b *testing.B, n int) {
	m := make(map[*node]*node)
	for _, k := range makeNodes(n) {
		m[k] = k
	}
	miss := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[miss[i%len(miss)]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkIdentDictSearchMiss(b *testing.B, n int) {
	d := New[node, node]()
	for _, k := range makeNodes(n) {
		d.Insert(k, k)
	}
	miss := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = d.Search(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapSearchHit(b *testing.B, n int) {
	m := make(map[*node]*node, n)
	keys := makeNodes(n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[keys[i%n]]
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkIdentDictSearchHit(b *testing.B, n int) {
	benchmarkSearchHit(b, n, New[node, node](WithInitialCapacity[node, node](n)))
}

func benchmarkIdentDictMixedSearchHit(b *testing.B, n int) {
	benchmarkSearchHit(b, n, New[node, node](
		WithInitialCapacity[node, node](n), WithMixedHash[node, node]()))
}

func benchmarkSearchHit(b *testing.B, n int, d *Dict[node, node]) {
	keys := makeNodes(n)
	for _, k := range keys {
		d.Insert(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = d.Search(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapInsertGrow(b *testing.B, n int) {
	keys := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[*node]*node)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkIdentDictInsertGrow(b *testing.B, n int) {
	keys := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		d := New[node, node]()
		for _, k := range keys {
			d.Insert(k, k)
		}
	}
}

func benchmarkRuntimeMapInsertPreAllocate(b *testing.B, n int) {
	keys := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		m := make(map[*node]*node, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkIdentDictInsertPreAllocate(b *testing.B, n int) {
	keys := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		d := New[node, node](WithInitialCapacity[node, node](n))
		for _, k := range keys {
			d.Insert(k, k)
		}
	}
}

func benchmarkRuntimeMapInsertReuse(b *testing.B, n int) {
	m := make(map[*node]*node, n)
	keys := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		for _, k := range keys {
			m[k] = k
		}
		clear(m)
	}
}

func benchmarkIdentDictInsertReuse(b *testing.B, n int) {
	d := New[node, node](WithInitialCapacity[node, node](n))
	keys := makeNodes(n)
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		for _, k := range keys {
			d.Insert(k, k)
		}
		d.Clear()
	}
}

func benchmarkRuntimeMapInsertRemove(b *testing.B, n int) {
	m := make(map[*node]*node, n)
	keys := makeNodes(n)
	for _, k := range keys {
		m[k] = k
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		k := keys[i%n]
		delete(m, k)
		m[k] = k
	}
}

func benchmarkIdentDictInsertRemove(b *testing.B, n int) {
	d := New[node, node](WithInitialCapacity[node, node](n))
	keys := makeNodes(n)
	for _, k := range keys {
		d.Insert(k, k)
	}
	b.ResetTimer()
	perfbench.Open(b)
	for i := 0; i < b.N; i++ {
		k := keys[i%n]
		d.Remove(k)
		d.Insert(k, k)
	}
}
