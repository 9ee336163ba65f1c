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

// Set is an unordered collection of unique keys. It instantiates the
// linear-probing kernel with the key itself as the stored entry.
//
// A Set is NOT goroutine-safe.
type Set[K comparable] struct {
	tbl table[K, K]
}

// NewSet constructs a new Set with the specified initial bucket count.
// bucketCount is a slot count, not an element count: it is rounded up to a
// power of two, and a value <= 0 selects the default of 16. Use Reserve to
// size by element count. The zero value for a Set is not usable.
func NewSet[K comparable](bucketCount int, options ...Option[K]) *Set[K] {
	var cfg config[K]
	for _, op := range options {
		op.apply(&cfg)
	}
	s := &Set[K]{}
	s.tbl.init(bucketCount, &cfg,
		func(e *K) K { return *e },
		func(key K) K { return key },
	)
	return s
}

// Add inserts key into the set, reporting whether it was newly added. An
// equivalent resident key is left untouched.
func (s *Set[K]) Add(key K) bool {
	_, added := s.tbl.insert(key)
	return added
}

// Contains reports whether key is present.
func (s *Set[K]) Contains(key K) bool {
	return s.tbl.locate(key) < len(s.tbl.slots)
}

// Get returns the resident key equivalent to key, with ok=false if there is
// none. Under a custom equivalence the resident key need not be identical
// to the argument, which makes Get useful for interning.
func (s *Set[K]) Get(key K) (resident K, ok bool) {
	if i := s.tbl.locate(key); i < len(s.tbl.slots) {
		return s.tbl.slots[i], true
	}
	return resident, false
}

// Remove deletes key from the set, reporting whether it was present.
func (s *Set[K]) Remove(key K) bool {
	return s.tbl.erase(key)
}

// Len returns the number of keys in the set.
func (s *Set[K]) Len() int {
	return s.tbl.used
}

// Cap returns the current slot count.
func (s *Set[K]) Cap() int {
	return len(s.tbl.slots)
}

// Empty reports whether the set holds no keys.
func (s *Set[K]) Empty() bool {
	return s.tbl.used == 0
}

// LoadFactor returns the current occupancy ratio, Len()/Cap().
func (s *Set[K]) LoadFactor() float64 {
	return s.tbl.loadFactor()
}

// MinLoadFactor returns the lower load bound.
func (s *Set[K]) MinLoadFactor() float64 {
	return s.tbl.minLoad
}

// MaxLoadFactor returns the upper load bound.
func (s *Set[K]) MaxLoadFactor() float64 {
	return s.tbl.maxLoad
}

// SetMinLoadFactor installs a new lower load bound in [0, MaxLoadFactor())
// and immediately shrinks the table once if it is now under the bound.
func (s *Set[K]) SetMinLoadFactor(f float64) {
	s.tbl.setMinLoadFactor(f)
}

// SetMaxLoadFactor installs a new upper load bound in (MinLoadFactor(), 1)
// and immediately grows the table if it is now over the bound.
func (s *Set[K]) SetMaxLoadFactor(f float64) {
	s.tbl.setMaxLoadFactor(f)
}

// Reserve grows (or shrinks) the table to hold at least n keys without
// further resizing.
func (s *Set[K]) Reserve(n int) {
	s.tbl.reserve(n)
}

// Rehash rebuilds the table at the next power of two >= bucketCount, raised
// as needed so the resident keys stay under the maximum load factor.
func (s *Set[K]) Rehash(bucketCount int) {
	s.tbl.rehash(bucketCount)
}

// Clear removes all keys, keeping the current capacity.
func (s *Set[K]) Clear() {
	s.tbl.clear()
}

// Clone returns a deep copy of the set using the same hash seed, capacity,
// slot placement, and allocator.
func (s *Set[K]) Clone() *Set[K] {
	return &Set[K]{tbl: s.tbl.clone()}
}

// Close releases the set's memory back to its configured allocator. It is
// unnecessary for the default allocator. The set must not be used after
// Close, though Close itself is idempotent.
func (s *Set[K]) Close() {
	s.tbl.close()
}

// All calls yield for each key in the set, in slot order, stopping early if
// yield returns false. It can be ranged over:
//
//	for k := range s.All {
//		fmt.Println(k)
//	}
//
// The set may be mutated during iteration, though mutations are not
// guaranteed to be visible to it.
func (s *Set[K]) All(yield func(key K) bool) {
	s.tbl.all(func(e *K) bool {
		return yield(*e)
	})
}

// Iter returns a cursor over the set positioned before the first key.
func (s *Set[K]) Iter() *SetIter[K] {
	return &SetIter[K]{c: cursor[K]{ctrls: s.tbl.ctrls, slots: s.tbl.slots, index: -1}}
}

// SetIter is a forward-only cursor over a set's keys in slot order. It is
// invalidated by mutations of the set: it stays memory-safe but may observe
// a stale view. Obtain a fresh cursor to start over.
type SetIter[K comparable] struct {
	c cursor[K]
}

// Next advances to the next key, reporting whether there is one. After Next
// has returned false it keeps returning false.
func (it *SetIter[K]) Next() bool {
	return it.c.next()
}

// Key returns the key under the cursor. It panics if the cursor is not
// positioned on a key (before the first Next or after Next returned false).
func (it *SetIter[K]) Key() K {
	return *it.c.at()
}
