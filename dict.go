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

// Package identdict is a hash dictionary keyed by object identity. It is
// used by a Boolean-expression engine to intern canonical expression nodes
// and to cache the results of simplification, where the workload is
// dominated by existence checks and overwrites.
//
// # Identities
//
// A Dict[K,V] maps a *K to a *V. Two keys are equal iff they are the same
// pointer, and by default a key hashes to its address. The dictionary never
// dereferences a key or value and never takes ownership of what they point
// to. Pointers to distinct zero-sized objects may compare equal in Go, so K
// should not be a zero-sized type.
//
// # Layout
//
// A Dict uses open addressing: every entry lives directly in a flat slot
// array whose length is drawn from a fixed sequence of primes (see
// capacities). A parallel array holds one control byte per slot recording
// whether the slot is empty, full, or deleted. Collisions are resolved with
// linear probing starting at hash(key) mod capacity, so a probe sequence
// visits every slot exactly once.
//
// Deletion leaves a tombstone (ctrlDeleted) in the slot. A tombstone does not
// terminate a probe, so keys further along the chain remain reachable. Insert
// reuses the first tombstone on a key's chain once it has established that
// the key is not already present further along.
//
// # Growth
//
// The maximum load factor is 2/3. When an insertion takes the number of live
// entries past that threshold, the table moves to the next size index and
// every live entry is reinserted into a fresh array, which drops all
// tombstones. Tombstones also consume space: when live entries plus
// tombstones exceed maxFill, the table is rehashed at its current size. The
// size index never decreases, not even on Clear.
package identdict

import (
	"fmt"
	"strings"
	"unsafe"
)

const debug = false

// Each slot in the table has a control byte in one of three states. A slot
// moves empty -> full on insertion, full -> deleted on removal, and deleted
// -> full when an insertion reuses the tombstone. Only a rehash turns a
// deleted slot back into an empty one.
type ctrl uint8

const (
	ctrlEmpty ctrl = iota
	ctrlFull
	ctrlDeleted
)

func (c ctrl) String() string {
	switch c {
	case ctrlEmpty:
		return "empty"
	case ctrlFull:
		return "full"
	case ctrlDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("ctrl(%02x)", uint8(c))
	}
}

// noSlot marks the absence of a candidate slot during insertion.
const noSlot = ^uintptr(0)

// Slot holds a key and value.
type Slot[K, V any] struct {
	key   *K
	value *V
}

// Dict is an unordered dictionary from key identities to value identities
// with Insert, Search, Contains, Remove, and Clear operations.
//
// A Dict is NOT goroutine-safe.
type Dict[K, V any] struct {
	// The hash function applied to each key. Defaults to the key's address.
	hash func(key *K) uintptr
	// The allocator to use for the ctrls and slots slices.
	allocator Allocator[K, V]
	// ctrls and slots are both capacity in length.
	ctrls []ctrl
	slots []Slot[K, V]
	// The total number of slots, capacities[sizeIndex].
	capacity  uintptr
	sizeIndex int
	// The number of full slots (i.e. the number of entries in the dict).
	used int
	// The number of tombstones.
	deleted int
}

// New constructs an empty Dict at the minimum capacity.
func New[K, V any](options ...option[K, V]) *Dict[K, V] {
	d := &Dict[K, V]{
		hash:      addressHash[K],
		allocator: defaultAllocator[K, V]{},
		sizeIndex: minSizeIndex,
	}

	for _, op := range options {
		op.apply(d)
	}

	d.resize(d.sizeIndex)
	return d
}

// Close releases the slot and control arrays back to the configured
// allocator. The objects identified by the keys and values are not touched.
// It is invalid to use a Dict after it has been closed: Insert, Search,
// Contains, and Remove panic. Close itself is idempotent.
func (d *Dict[K, V]) Close() {
	if d.capacity > 0 {
		d.allocator.FreeSlots(d.slots)
		d.allocator.FreeControls(unsafeConvertSlice[uint8](d.ctrls))
	}
	d.ctrls = nil
	d.slots = nil
	d.capacity = 0
	d.used = 0
	d.deleted = 0
}

// Insert inserts an entry into the dict, overwriting the existing value if
// an entry with the same key already exists. Insert panics if key is nil.
func (d *Dict[K, V]) Insert(key *K, value *V) {
	d.checkOpen()
	if key == nil {
		panic("identdict: nil key")
	}

	seq := makeProbeSeq(d.hash(key), d.capacity)
	if debug {
		fmt.Printf("insert(%p): %s\n", key, seq)
	}

	// The key may sit beyond any number of tombstones, so the first
	// tombstone on the chain is only remembered. It is used once an empty
	// slot (or the end of the sequence) proves the key is absent.
	target := noSlot
probe:
	for ; !seq.done(); seq = seq.next() {
		i := seq.offset
		switch d.ctrls[i] {
		case ctrlFull:
			if s := &d.slots[i]; s.key == key {
				if debug {
					fmt.Printf("insert(updating): index=%d key=%p\n", i, key)
				}
				s.value = value
				d.checkInvariants()
				return
			}
		case ctrlDeleted:
			if target == noSlot {
				target = i
			}
		case ctrlEmpty:
			if target == noSlot {
				target = i
			}
			break probe
		}
	}

	if target == noSlot {
		panic(fmt.Sprintf("identdict: no free slot for %p\n%s", key, d.debugString()))
	}
	if d.ctrls[target] == ctrlDeleted {
		d.deleted--
	}
	d.ctrls[target] = ctrlFull
	d.slots[target] = Slot[K, V]{key: key, value: value}
	d.used++
	if debug {
		fmt.Printf("insert(inserting): index=%d used=%d deleted=%d\n", target, d.used, d.deleted)
	}

	d.maybeRehash()
	d.checkInvariants()
}

// Search retrieves the value for the specified key, returning ok=false if
// the key is not present.
func (d *Dict[K, V]) Search(key *K) (value *V, ok bool) {
	if i, found := d.find(key); found {
		return d.slots[i].value, true
	}
	return nil, false
}

// Contains returns true if the key is present in the dict.
func (d *Dict[K, V]) Contains(key *K) bool {
	_, ok := d.find(key)
	return ok
}

// Remove deletes the entry for the specified key, returning true if the key
// was present. It is a noop to remove a non-existent key.
func (d *Dict[K, V]) Remove(key *K) bool {
	i, ok := d.find(key)
	if !ok {
		return false
	}
	// The slot must become a tombstone rather than empty: an empty slot
	// would terminate the probe for any key placed after it on its chain.
	d.slots[i] = Slot[K, V]{}
	d.ctrls[i] = ctrlDeleted
	d.used--
	d.deleted++
	if debug {
		fmt.Printf("remove(%p): index=%d used=%d deleted=%d\n", key, i, d.used, d.deleted)
	}
	d.checkInvariants()
	return true
}

// Clear deletes all entries from the dict. The capacity is retained.
func (d *Dict[K, V]) Clear() {
	for i := range d.ctrls {
		d.ctrls[i] = ctrlEmpty
	}
	clear(d.slots)
	d.used = 0
	d.deleted = 0
	d.checkInvariants()
}

// All calls yield sequentially for each key and value present in the dict.
// If yield returns false, iteration stops. The order is unspecified. The
// dict can be mutated during iteration, though there is no guarantee that
// the mutations will be visible to the iteration.
func (d *Dict[K, V]) All(yield func(key *K, value *V) bool) {
	// Snapshot the ctrls and slots so that iteration remains valid if the
	// dict is resized during iteration.
	ctrls, slots := d.ctrls, d.slots
	for i := range ctrls {
		if ctrls[i] == ctrlFull {
			s := slots[i]
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Len returns the number of entries in the dict.
func (d *Dict[K, V]) Len() int {
	return d.used
}

// Equal returns true if both dicts contain the same keys, each mapped to the
// same value.
func (d *Dict[K, V]) Equal(other *Dict[K, V]) bool {
	if d.used != other.used {
		return false
	}
	equal := true
	d.All(func(k *K, v *V) bool {
		ov, ok := other.Search(k)
		equal = ok && ov == v
		return equal
	})
	return equal
}

// Update inserts every entry of other into the dict, overwriting the values
// of keys already present.
func (d *Dict[K, V]) Update(other *Dict[K, V]) {
	if d == other {
		return
	}
	other.All(func(k *K, v *V) bool {
		d.Insert(k, v)
		return true
	})
}

// find returns the index of the full slot holding key.
func (d *Dict[K, V]) find(key *K) (uintptr, bool) {
	d.checkOpen()
	if key == nil {
		return 0, false
	}
	seq := makeProbeSeq(d.hash(key), d.capacity)
	if debug {
		fmt.Printf("find(%p): %s\n", key, seq)
	}

	// Tombstones behave like full slots that never match the key.
	for ; !seq.done(); seq = seq.next() {
		i := seq.offset
		switch d.ctrls[i] {
		case ctrlFull:
			if d.slots[i].key == key {
				return i, true
			}
		case ctrlEmpty:
			if debug {
				fmt.Printf("find(not-found): index=%d\n", i)
			}
			return 0, false
		}
	}
	return 0, false
}

func (d *Dict[K, V]) checkOpen() {
	if d.capacity == 0 {
		panic("identdict: use of closed Dict")
	}
}

// maybeRehash grows the table if the live entries have passed the maximum
// load factor, or rehashes it at its current size if tombstones have eaten
// into the space left for probing.
func (d *Dict[K, V]) maybeRehash() {
	switch {
	case uintptr(d.used) > maxLoad(d.capacity):
		d.resize(d.sizeIndex + 1)
	case uintptr(d.used+d.deleted) > maxFill(d.capacity):
		d.resize(d.sizeIndex)
	}
}

// resize allocates fresh slot and control arrays for the given size index
// and uncheckedInserts each live entry into them (we know that no insertion
// here will see an already-present key), discarding the old arrays and every
// tombstone in them.
func (d *Dict[K, V]) resize(sizeIndex int) {
	newCapacity := capacityAt(sizeIndex)

	oldCtrls, oldSlots, oldCapacity := d.ctrls, d.slots, d.capacity
	d.slots = d.allocator.AllocSlots(int(newCapacity))
	d.ctrls = unsafeConvertSlice[ctrl](d.allocator.AllocControls(int(newCapacity)))
	for i := range d.ctrls {
		d.ctrls[i] = ctrlEmpty
	}
	d.capacity = newCapacity
	d.sizeIndex = sizeIndex
	d.deleted = 0

	if debug {
		fmt.Printf("resize: capacity=%d->%d used=%d\n", oldCapacity, newCapacity, d.used)
	}

	for i := range oldCtrls {
		if oldCtrls[i] == ctrlFull {
			s := &oldSlots[i]
			d.uncheckedInsert(s.key, s.value)
		}
	}

	if oldCapacity > 0 {
		d.allocator.FreeSlots(oldSlots)
		d.allocator.FreeControls(unsafeConvertSlice[uint8](oldCtrls))
	}
}

// uncheckedInsert places an entry known not to be in the table into the
// first empty slot on its probe sequence. The table must be free of
// tombstones.
func (d *Dict[K, V]) uncheckedInsert(key *K, value *V) {
	for seq := makeProbeSeq(d.hash(key), d.capacity); !seq.done(); seq = seq.next() {
		if i := seq.offset; d.ctrls[i] == ctrlEmpty {
			d.ctrls[i] = ctrlFull
			d.slots[i] = Slot[K, V]{key: key, value: value}
			return
		}
	}
	panic(fmt.Sprintf("identdict: no empty slot for %p\n%s", key, d.debugString()))
}

func (d *Dict[K, V]) checkInvariants() {
	if invariants {
		if d.capacity != capacityAt(d.sizeIndex) {
			panic(fmt.Sprintf("invariant failed: capacity %d != capacityAt(%d)=%d",
				d.capacity, d.sizeIndex, capacityAt(d.sizeIndex)))
		}
		if uintptr(len(d.ctrls)) != d.capacity || uintptr(len(d.slots)) != d.capacity {
			panic(fmt.Sprintf("invariant failed: len(ctrls)=%d len(slots)=%d capacity=%d",
				len(d.ctrls), len(d.slots), d.capacity))
		}

		// For every full slot, verify we can retrieve the key using Search
		// and that no key appears twice. Count the full and deleted slots.
		seen := make(map[*K]uintptr, d.used)
		var used, deleted int
		for i := uintptr(0); i < d.capacity; i++ {
			switch c := d.ctrls[i]; c {
			case ctrlEmpty:
			case ctrlDeleted:
				deleted++
			case ctrlFull:
				s := &d.slots[i]
				if j, ok := seen[s.key]; ok {
					panic(fmt.Sprintf("invariant failed: slot(%d) and slot(%d) both hold %p\n%s",
						j, i, s.key, d.debugString()))
				}
				seen[s.key] = i
				if v, ok := d.Search(s.key); !ok || v != s.value {
					panic(fmt.Sprintf("invariant failed: slot(%d): %p not found [hash=%x]\n%s",
						i, s.key, d.hash(s.key), d.debugString()))
				}
				used++
			default:
				panic(fmt.Sprintf("invariant failed: slot(%d): unexpected %s", i, c))
			}
		}

		if used != d.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, d.used, d.debugString()))
		}
		if deleted != d.deleted {
			panic(fmt.Sprintf("invariant failed: found %d deleted slots, but deleted count is %d\n%s",
				deleted, d.deleted, d.debugString()))
		}
		if uintptr(d.used) > maxLoad(d.capacity) || uintptr(d.used+d.deleted) > maxFill(d.capacity) {
			panic(fmt.Sprintf("invariant failed: used=%d deleted=%d exceed capacity=%d\n%s",
				d.used, d.deleted, d.capacity, d.debugString()))
		}
	}
}

func (d *Dict[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  size-index=%d  used=%d  deleted=%d\n",
		d.capacity, d.sizeIndex, d.used, d.deleted)
	for i := uintptr(0); i < d.capacity; i++ {
		switch c := d.ctrls[i]; c {
		case ctrlFull:
			s := &d.slots[i]
			fmt.Fprintf(&buf, "  %4d: %p [home=%d] -> %p\n", i, s.key, d.hash(s.key)%d.capacity, s.value)
		default:
			fmt.Fprintf(&buf, "  %4d: %s\n", i, c)
		}
	}
	return buf.String()
}

// probeSeq maintains the state for a linear probe sequence
//
//	p(i) := (hash + i) mod capacity
//
// for i in [0, capacity). Every slot is visited exactly once, so a probe
// over a table with no empty slots terminates after capacity steps.
type probeSeq struct {
	capacity uintptr
	offset   uintptr
	index    uintptr
}

func makeProbeSeq(hash, capacity uintptr) probeSeq {
	return probeSeq{
		capacity: capacity,
		offset:   hash % capacity,
		index:    0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset++
	if s.offset == s.capacity {
		s.offset = 0
	}
	return s
}

func (s probeSeq) done() bool {
	return s.index >= s.capacity
}

func (s probeSeq) String() string {
	return fmt.Sprintf("capacity=%d offset=%d index=%d", s.capacity, s.offset, s.index)
}

// addressHash is the default hash: the address of the key.
func addressHash[K any](key *K) uintptr {
	return uintptr(unsafe.Pointer(key))
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
