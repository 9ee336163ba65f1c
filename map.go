// Copyright 2026 The Tablekit Authors
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

package linear

// Entry is the key/value pair a Map stores in each occupied slot. It is
// exported so that custom Allocators for maps can be written against the
// stored entry type.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is an unordered map from unique keys to values with Get, Put, Delete,
// and All operations. It instantiates the linear-probing kernel with
// Entry[K,V] as the stored entry. By default, a Map[K,V] uses the same hash
// function as Go's builtin map[K]V, though a different hash function can be
// specified using the WithHash option.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	tbl table[Entry[K, V], K]
}

// NewMap constructs a new Map with the specified initial bucket count.
// bucketCount is a slot count, not an element count: it is rounded up to a
// power of two, and a value <= 0 selects the default of 16. Use Reserve to
// size by element count. The zero value for a Map is not usable.
func NewMap[K comparable, V any](bucketCount int, options ...Option[K]) *Map[K, V] {
	var cfg config[K]
	for _, op := range options {
		op.apply(&cfg)
	}
	m := &Map[K, V]{}
	m.tbl.init(bucketCount, &cfg,
		func(e *Entry[K, V]) K { return e.Key },
		func(key K) Entry[K, V] { return Entry[K, V]{Key: key} },
	)
	return m
}

// Get retrieves the value stored under key, returning ok=false if the key
// is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	if i := m.tbl.locate(key); i < len(m.tbl.slots) {
		return m.tbl.slots[i].Value, true
	}
	return value, false
}

// Contains reports whether key is present.
func (m *Map[K, V]) Contains(key K) bool {
	return m.tbl.locate(key) < len(m.tbl.slots)
}

// Put associates value with key, overwriting the value of an existing
// entry. Like the builtin map, Put keeps the resident key when one is
// already present, which is observable under a custom equivalence.
func (m *Map[K, V]) Put(key K, value V) {
	i, inserted := m.tbl.insert(Entry[K, V]{Key: key, Value: value})
	if !inserted {
		m.tbl.slots[i].Value = value
	}
}

// Insert adds an entry only if no equivalent key is resident. It returns
// the resident value and whether the insertion happened; when it reports
// false the existing entry is left untouched and its value is returned.
func (m *Map[K, V]) Insert(key K, value V) (V, bool) {
	i, inserted := m.tbl.insert(Entry[K, V]{Key: key, Value: value})
	return m.tbl.slots[i].Value, inserted
}

// At returns a pointer to the value stored under key, inserting an entry
// with the zero value first if the key is absent. The pointer is valid only
// until the next mutation of the map; a Put, Delete, Reserve, or growth
// triggered by another At may relocate the entry.
//
//	*m.At("counter")++
func (m *Map[K, V]) At(key K) *V {
	return &m.tbl.ref(key).Value
}

// Delete removes the entry stored under key, reporting whether one was
// present.
func (m *Map[K, V]) Delete(key K) bool {
	return m.tbl.erase(key)
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.tbl.used
}

// Cap returns the current slot count.
func (m *Map[K, V]) Cap() int {
	return len(m.tbl.slots)
}

// Empty reports whether the map holds no entries.
func (m *Map[K, V]) Empty() bool {
	return m.tbl.used == 0
}

// LoadFactor returns the current occupancy ratio, Len()/Cap().
func (m *Map[K, V]) LoadFactor() float64 {
	return m.tbl.loadFactor()
}

// MinLoadFactor returns the lower load bound.
func (m *Map[K, V]) MinLoadFactor() float64 {
	return m.tbl.minLoad
}

// MaxLoadFactor returns the upper load bound.
func (m *Map[K, V]) MaxLoadFactor() float64 {
	return m.tbl.maxLoad
}

// SetMinLoadFactor installs a new lower load bound in [0, MaxLoadFactor())
// and immediately shrinks the table once if it is now under the bound.
// Bounds outside the valid band panic.
func (m *Map[K, V]) SetMinLoadFactor(f float64) {
	m.tbl.setMinLoadFactor(f)
}

// SetMaxLoadFactor installs a new upper load bound in (MinLoadFactor(), 1)
// and immediately grows the table if it is now over the bound. Bounds
// outside the valid band panic.
func (m *Map[K, V]) SetMaxLoadFactor(f float64) {
	m.tbl.setMaxLoadFactor(f)
}

// Reserve grows (or shrinks) the table to hold at least n entries without
// further resizing.
func (m *Map[K, V]) Reserve(n int) {
	m.tbl.reserve(n)
}

// Rehash rebuilds the table at the next power of two >= bucketCount, raised
// as needed so the resident entries stay under the maximum load factor.
// Entry placement after a Rehash follows the new capacity's slot order.
func (m *Map[K, V]) Rehash(bucketCount int) {
	m.tbl.rehash(bucketCount)
}

// Clear removes all entries, keeping the current capacity.
func (m *Map[K, V]) Clear() {
	m.tbl.clear()
}

// Clone returns a deep copy of the map using the same hash seed, capacity,
// slot placement, and allocator.
func (m *Map[K, V]) Clone() *Map[K, V] {
	return &Map[K, V]{tbl: m.tbl.clone()}
}

// Close releases the map's memory back to its configured allocator. It is
// unnecessary to close a map using the default allocator. The map must not
// be used after Close, though Close itself is idempotent.
func (m *Map[K, V]) Close() {
	m.tbl.close()
}

// All calls yield for each key and value in the map, in slot order,
// stopping early if yield returns false. It can be ranged over:
//
//	for k, v := range m.All {
//		fmt.Printf("%v: %v\n", k, v)
//	}
//
// The map may be mutated during iteration, though mutations are not
// guaranteed to be visible to it.
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	m.tbl.all(func(e *Entry[K, V]) bool {
		return yield(e.Key, e.Value)
	})
}

// Iter returns a cursor over the map positioned before the first entry.
func (m *Map[K, V]) Iter() *MapIter[K, V] {
	return &MapIter[K, V]{
		c: cursor[Entry[K, V]]{ctrls: m.tbl.ctrls, slots: m.tbl.slots, index: -1},
	}
}

// MapIter is a forward-only cursor over a map's entries in slot order. It
// is invalidated by mutations of the map: it stays memory-safe but may
// observe a stale view. Obtain a fresh cursor to start over.
type MapIter[K comparable, V any] struct {
	c cursor[Entry[K, V]]
}

// Next advances to the next entry, reporting whether there is one. After
// Next has returned false it keeps returning false.
func (it *MapIter[K, V]) Next() bool {
	return it.c.next()
}

// Key returns the key under the cursor. It panics if the cursor is not
// positioned on an entry (before the first Next or after Next returned
// false).
func (it *MapIter[K, V]) Key() K {
	return it.c.at().Key
}

// Value returns the value under the cursor, with the same positioning
// requirement as Key.
func (it *MapIter[K, V]) Value() V {
	return it.c.at().Value
}
