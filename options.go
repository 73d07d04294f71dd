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
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// option provide an interface to do work on Dict while it is being created.
type option[K, V any] interface {
	apply(d *Dict[K, V])
}

type hashOption[K, V any] struct {
	hash func(key *K) uintptr
}

func (op hashOption[K, V]) apply(d *Dict[K, V]) {
	d.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Dict[K,V].
// The hash of a key must not change while the key is in the dict.
func WithHash[K, V any](hash func(key *K) uintptr) option[K, V] {
	return hashOption[K, V]{hash}
}

// WithMixedHash is an option to hash keys by running their address through
// xxhash rather than using it directly. This costs a few nanoseconds per
// operation but breaks up runs of keys allocated at regular strides.
func WithMixedHash[K, V any]() option[K, V] {
	return hashOption[K, V]{mixedHash[K]}
}

func mixedHash[K any](key *K) uintptr {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(uintptr(unsafe.Pointer(key))))
	return uintptr(xxhash.Sum64(buf[:]))
}

type initialCapacityOption[K, V any] struct {
	n int
}

func (op initialCapacityOption[K, V]) apply(d *Dict[K, V]) {
	if op.n > 0 {
		d.sizeIndex = sizeIndexFor(op.n)
	}
}

// WithInitialCapacity is an option to size a new Dict[K,V] so that it holds
// n entries without growing. Values of n that fit in the minimum capacity
// have no effect.
func WithInitialCapacity[K, V any](n int) option[K, V] {
	return initialCapacityOption[K, V]{n}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Dict. The default allocator utilizes Go's builtin make() and allows
// the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots and
// controls be freed then Dict.Close must be called in order to ensure
// FreeSlots and FreeControls are called.
type Allocator[K, V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K,V], n).
	AllocSlots(n int) []Slot[K, V]

	// AllocControls should return a slice equivalent to make([]uint8, n).
	AllocControls(n int) []uint8

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[K, V])

	// FreeControls can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocControls.
	FreeControls(v []uint8)
}

type defaultAllocator[K, V any] struct{}

func (defaultAllocator[K, V]) AllocSlots(n int) []Slot[K, V] {
	return make([]Slot[K, V], n)
}

func (defaultAllocator[K, V]) AllocControls(n int) []uint8 {
	return make([]uint8, n)
}

func (defaultAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
}

func (defaultAllocator[K, V]) FreeControls(v []uint8) {
}

type allocatorOption[K, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(d *Dict[K, V]) {
	d.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Dict[K,V].
func WithAllocator[K, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
