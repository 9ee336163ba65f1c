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

// Package linear provides Set[K] and Map[K,V], unique-key containers backed
// by a single open-addressing hash table kernel that stores entries inline
// in a power-of-two slot array, resolves collisions by linear probing, and
// deletes with a backward-shift compaction pass rather than tombstones. If
// you're not familiar with open-addressing see
// https://en.wikipedia.org/wiki/Open_addressing and
// https://en.wikipedia.org/wiki/Linear_probing.
//
// # Probing
//
// An entry's ideal slot is hash(key) masked by capacity-1 (capacity is
// always a power of two, so the mask is the modulo). Lookup starts at the
// ideal slot and walks forward one slot at a time, wrapping at the end of
// the array, until it finds a key-equivalent entry or an empty slot. The
// structural invariant that makes stopping at an empty slot correct is that
// every live entry sits on a contiguous run of occupied slots beginning at
// its ideal slot; an empty slot therefore proves the key cannot be stored
// any further along. Probing advances exactly one slot per step, in
// increasing circular index order, with no randomization.
//
// # Deletion
//
// Classic linear-probing tables delete by leaving a tombstone in the
// vacated slot so that probe sequences keep walking through it. Tombstones
// accumulate and degrade probe lengths until a rehash collects them. This
// implementation instead repairs the probe invariant eagerly, following
// Knuth's deletion algorithm (TAOCP volume 3, section 6.4, algorithm R):
// after vacating a slot it walks the remainder of the probe run and shifts
// back every entry whose ideal slot lies outside the open circular arc
// between the gap and the entry's current slot, then continues from the slot
// that entry vacated. The pass stops at the first empty slot. The table
// never carries tombstones, so probe lengths depend only on the load factor
// and not on the deletion history.
//
// # Load factors
//
// The occupancy is kept inside an operating band: minUsed =
// floor(minLoad*capacity) and maxUsed = floor(maxLoad*capacity), with
// defaults 0.3 and 0.7. An insert that observes occupancy at the top of the
// band doubles the capacity before placing; an erase that drops occupancy
// under the bottom halves it, provided more than 16 entries remain (small
// tables never shrink). Both bounds are tunable at runtime and re-check the
// band immediately when set. Rehashing re-places every live entry against
// the new capacity; the new capacity is computed up front from the live
// count so that the re-placement sweep itself can never trigger a nested
// resize.
//
// # Implementation
//
// By default keys are hashed with the same hash function Go's builtin
// map[K]struct{} would use, extracted by reaching into the runtime's type
// descriptors (this might break in a future version of Go, but is likely
// fixable unless the runtime does something drastic). The hash is seeded
// per-table. Keys containing NaN floating-point values are unreachable
// after insertion since NaN never compares equal to itself; this is the
// usual caveat for user-level hash containers in Go.
//
// A Set[K] instantiates the kernel with the key itself as the stored entry;
// a Map[K,V] instantiates it with Entry[K,V] pairs. Neither container is
// goroutine-safe.
package linear

import (
	"fmt"
	"math"
	"math/bits"
	"math/rand"
	"strings"
	"unsafe"
)

const (
	debug = false

	// defaultBucketCount is the slot count a table starts with when the
	// constructor is given no explicit count.
	defaultBucketCount = 16

	defaultMinLoad = 0.3
	defaultMaxLoad = 0.7

	// shrinkFloor is the occupancy at or below which erase never shrinks
	// the table. Small tables keep their capacity no matter how empty they
	// become.
	shrinkFloor = 16

	ctrlEmpty ctrl = 0b00000000
	ctrlFull  ctrl = 0b10000000
)

// Each slot in the table has a control byte with one of two states:
//
//	empty: 0 0 0 0 0 0 0 0
//	 full: 1 0 0 0 0 0 0 0
//
// The empty state is the zero byte so that a zeroed control array describes
// an empty table.
type ctrl uint8

// table is the probing, resizing, and deletion engine underneath Set and
// Map. E is the entry type held in the slots (K itself for a Set, an
// Entry[K,V] for a Map) and K is the key type probed with. How a key view
// is taken from a stored entry, and how a default entry is built from a
// bare key, are capabilities the owning container supplies at construction;
// the kernel itself never looks inside an entry.
type table[E any, K comparable] struct {
	// ctrls[i] describes slots[i]. Both slices have capacity length, the
	// capacity is always a power of two, and both come from the allocator.
	ctrls []ctrl
	// slots[i] holds a live entry iff ctrls[i] == ctrlFull. The bits of an
	// empty slot are the zero value (or whatever a custom allocator handed
	// us before first use) and are never read as an entry.
	slots []E
	// The number of filled slots (i.e. the number of elements in the
	// table).
	used int
	// The operating band, recomputed whenever the capacity or a load
	// factor changes: minUsed = floor(minLoad*capacity), maxUsed =
	// floor(maxLoad*capacity). Insertion observing used == maxUsed grows
	// before placing; deletion observing used < minUsed shrinks if more
	// than shrinkFloor entries remain.
	minUsed, maxUsed int
	minLoad, maxLoad float64

	// The hash function applied to keys of type K. By default this is
	// extracted from the Go runtime's implementation of map[K]struct{}.
	hash hashFn
	seed uintptr
	// equal, when non-nil, replaces == as the key equivalence relation.
	equal func(a, b K) bool

	// The allocator to use for the ctrls and slots slices.
	allocator Allocator[E]

	// The extraction capabilities. keyOf returns the key view of a stored
	// entry; fromKey builds the default entry stored when the indexing
	// accessor misses.
	keyOf   func(e *E) K
	fromKey func(key K) E
}

// init configures and allocates the table. bucketCount <= 0 selects the
// default; anything else is rounded up to the next power of two. bucketCount
// is a slot count, not an element count (see reserve for the latter).
func (t *table[E, K]) init(
	bucketCount int, cfg *config[K], keyOf func(e *E) K, fromKey func(key K) E,
) {
	t.hash = cfg.hash
	if t.hash == nil {
		t.hash = getRuntimeHasher[K]()
	}
	t.seed = uintptr(rand.Uint64())
	t.equal = cfg.equal
	t.allocator = defaultAllocator[E]{}
	if cfg.allocator != nil {
		a, ok := cfg.allocator.(Allocator[E])
		if !ok {
			panic(fmt.Sprintf("linear: allocator %T cannot allocate entries of type %T",
				cfg.allocator, *new(E)))
		}
		t.allocator = a
	}
	t.minLoad = defaultMinLoad
	t.maxLoad = defaultMaxLoad
	t.keyOf = keyOf
	t.fromKey = fromKey

	if bucketCount <= 0 {
		bucketCount = defaultBucketCount
	}
	t.alloc(nextPowerOfTwo(bucketCount))
	t.checkInvariants()
}

// alloc installs fresh slot arrays of the given power-of-two capacity and
// resets the occupancy bookkeeping. The previous arrays, if any, are the
// caller's to release. Both allocations complete before either array is
// installed, so an allocator failure leaves the table untouched.
func (t *table[E, K]) alloc(capacity int) {
	slots := t.allocator.AllocSlots(capacity)
	ctrls := unsafeConvertSlice[ctrl](t.allocator.AllocControls(capacity))
	// A custom allocator may recycle memory, so the control bytes cannot
	// be assumed zero.
	clear(ctrls)
	t.slots = slots
	t.ctrls = ctrls
	t.used = 0
	t.rebound()
}

// rebound recomputes the operating band from the current capacity and load
// factors.
func (t *table[E, K]) rebound() {
	t.minUsed = int(t.minLoad * float64(len(t.slots)))
	t.maxUsed = int(t.maxLoad * float64(len(t.slots)))
}

func (t *table[E, K]) loadFactor() float64 {
	return float64(t.used) / float64(len(t.slots))
}

// ideal returns the slot index the key hashes to before any collision is
// resolved.
func (t *table[E, K]) ideal(key K) int {
	h := t.hash(noescape(unsafe.Pointer(&key)), t.seed)
	return int(h & uintptr(len(t.slots)-1))
}

func (t *table[E, K]) keyEqual(a, b K) bool {
	if t.equal != nil {
		return t.equal(a, b)
	}
	return a == b
}

// locate returns the index of the slot holding key, or the terminal index
// len(t.slots) if the key is not present. Starting at the key's ideal slot
// it walks forward circularly while slots are occupied, testing key
// equivalence at each; the first empty slot proves absence. The walk
// terminates because the operating band keeps used < capacity.
func (t *table[E, K]) locate(key K) int {
	mask := len(t.slots) - 1
	i := t.ideal(key)
	if debug {
		fmt.Printf("locate(%v): ideal=%d\n", key, i)
	}
	for t.ctrls[i] == ctrlFull {
		if t.keyEqual(key, t.keyOf(&t.slots[i])) {
			return i
		}
		i = (i + 1) & mask
	}
	return len(t.slots)
}

// uncheckedPlace writes an entry known not to be in the table into the
// first empty slot on its probe run and returns the slot index. The caller
// must have kept the band (growing first if used == maxUsed); this method
// has no resize path, which is what makes the rehash sweep safe against
// reentry.
func (t *table[E, K]) uncheckedPlace(e E) int {
	mask := len(t.slots) - 1
	i := t.ideal(t.keyOf(&e))
	for t.ctrls[i] == ctrlFull {
		i = (i + 1) & mask
	}
	t.slots[i] = e
	t.ctrls[i] = ctrlFull
	t.used++
	if debug {
		fmt.Printf("place(%v): index=%d used=%d\n", t.keyOf(&e), i, t.used)
	}
	return i
}

// maybeGrow doubles the capacity when occupancy has reached the top of the
// band. Every insertion path calls it before placing, so a placement never
// observes a full band.
func (t *table[E, K]) maybeGrow() {
	if t.used == t.maxUsed {
		t.rehash(2 * len(t.slots))
	}
}

// insert adds e unless an entry with an equivalent key is already present.
// It returns the slot index of the resident entry and whether an insertion
// happened; when it reports false the resident entry is left untouched.
func (t *table[E, K]) insert(e E) (int, bool) {
	if i := t.locate(t.keyOf(&e)); i < len(t.slots) {
		return i, false
	}
	t.maybeGrow()
	i := t.uncheckedPlace(e)
	t.checkInvariants()
	return i, true
}

// ref returns a pointer to the entry stored under key, inserting the
// default entry built by fromKey when the key is absent. The pointer is
// valid until the next mutation of the table.
func (t *table[E, K]) ref(key K) *E {
	i := t.locate(key)
	if i == len(t.slots) {
		t.maybeGrow()
		i = t.uncheckedPlace(t.fromKey(key))
		t.checkInvariants()
	}
	return &t.slots[i]
}

// shiftable reports whether an entry stored at slot i whose ideal slot is h
// may move back into the gap at slot g. It may exactly when h lies outside
// the open circular arc (g, i]: the entry's probe run covers (h..i], so the
// run already passes through g and relocating the entry to g leaves the run
// gap-free. With h inside (g, i] the move would strand the entry before its
// ideal slot.
func shiftable(g, h, i int) bool {
	if g < i {
		return h <= g || h > i
	}
	return h <= g && h > i
}

// erase removes the entry stored under key, reporting whether one was
// removed. Removal vacates the slot and then repairs the probe invariant by
// backward-shifting: entries on the probe run after the gap move into it
// when their own run permits, carrying the gap forward until the run's
// first empty slot.
func (t *table[E, K]) erase(key K) bool {
	mask := len(t.slots) - 1
	g := t.locate(key)
	if g == len(t.slots) {
		return false
	}

	var zero E
	t.slots[g] = zero
	t.ctrls[g] = ctrlEmpty
	t.used--
	if debug {
		fmt.Printf("erase(%v): index=%d used=%d\n", key, g, t.used)
	}

	for i := (g + 1) & mask; t.ctrls[i] == ctrlFull; i = (i + 1) & mask {
		h := t.ideal(t.keyOf(&t.slots[i]))
		if shiftable(g, h, i) {
			if debug {
				fmt.Printf("erase(shift): %d -> %d [ideal=%d]\n", i, g, h)
			}
			t.slots[g] = t.slots[i]
			t.slots[i] = zero
			t.ctrls[g] = ctrlFull
			t.ctrls[i] = ctrlEmpty
			g = i
		}
	}

	if t.used < t.minUsed && t.used > shrinkFloor {
		t.rehash(len(t.slots) / 2)
	}
	t.checkInvariants()
	return true
}

// rehash rebuilds the table, re-placing every live entry against a new
// capacity: the next power of two >= max(requestedCapacity, 1), doubled
// until the live count fits under the maximum load factor. Computing the
// final capacity up front from the known live count is what guarantees the
// sweep below cannot itself run out of band, so a rehash can never reenter
// rehash. The old arrays are released only after the sweep completes.
func (t *table[E, K]) rehash(requestedCapacity int) {
	newCapacity := nextPowerOfTwo(max(requestedCapacity, 1))
	for t.used > int(t.maxLoad*float64(newCapacity)) {
		newCapacity *= 2
	}

	if debug {
		fmt.Printf("rehash: capacity=%d->%d used=%d\n",
			len(t.slots), newCapacity, t.used)
	}

	oldCtrls, oldSlots := t.ctrls, t.slots
	t.alloc(newCapacity)

	for i := range oldSlots {
		if oldCtrls[i] == ctrlFull {
			t.uncheckedPlace(oldSlots[i])
		}
	}

	t.allocator.FreeSlots(oldSlots)
	t.allocator.FreeControls(unsafeConvertSlice[uint8](oldCtrls))

	t.checkInvariants()
}

// reserve rehashes to a capacity that holds at least n entries without
// growing, i.e. ceil(n / maxLoad) slots before power-of-two rounding. A
// reserve below the current occupancy acts as a shrink request; the rehash
// clamp keeps it safe.
func (t *table[E, K]) reserve(n int) {
	t.rehash(int(math.Ceil(float64(n) / t.maxLoad)))
}

// setMinLoadFactor installs a new lower load bound and immediately shrinks
// once if the table is now under it. The explicit setter deliberately skips
// the shrinkFloor guard that erase applies.
func (t *table[E, K]) setMinLoadFactor(f float64) {
	if f < 0 || f >= t.maxLoad {
		panic(fmt.Sprintf("linear: min load factor %v outside [0, %v)", f, t.maxLoad))
	}
	t.minLoad = f
	t.rebound()
	if t.used < t.minUsed {
		t.rehash(len(t.slots) / 2)
	}
}

// setMaxLoadFactor installs a new upper load bound and immediately grows if
// the table is now over it.
func (t *table[E, K]) setMaxLoadFactor(f float64) {
	if f <= t.minLoad || f >= 1 {
		panic(fmt.Sprintf("linear: max load factor %v outside (%v, 1)", f, t.minLoad))
	}
	t.maxLoad = f
	t.rebound()
	if t.used > t.maxUsed {
		t.rehash(2 * len(t.slots))
	}
}

// clear removes every entry, keeping the capacity and the band. Slots are
// zeroed so anything the entries referenced can be collected.
func (t *table[E, K]) clear() {
	clear(t.slots)
	clear(t.ctrls)
	t.used = 0
	t.checkInvariants()
}

// clone returns a deep copy that shares nothing with t: same capacity, same
// seed, identical slot placement (dormant cells included), same allocator.
func (t *table[E, K]) clone() table[E, K] {
	n := *t
	n.slots = t.allocator.AllocSlots(len(t.slots))
	n.ctrls = unsafeConvertSlice[ctrl](t.allocator.AllocControls(len(t.ctrls)))
	copy(n.slots, t.slots)
	copy(n.ctrls, t.ctrls)
	return n
}

// close releases the slot arrays back to the allocator. The table is not
// usable afterward; closing again is a no-op.
func (t *table[E, K]) close() {
	if t.allocator == nil {
		return
	}
	t.allocator.FreeSlots(t.slots)
	t.allocator.FreeControls(unsafeConvertSlice[uint8](t.ctrls))
	t.slots = nil
	t.ctrls = nil
	t.used = 0
	t.allocator = nil
}

// all calls yield for every occupied slot in slot order, stopping early if
// yield returns false. The slices are captured up front so that iteration
// remains memory-safe if the table is resized by the yield function, though
// mutations are then not guaranteed to be visible.
func (t *table[E, K]) all(yield func(e *E) bool) {
	ctrls, slots := t.ctrls, t.slots
	for i := range slots {
		if ctrls[i] == ctrlFull {
			if !yield(&slots[i]) {
				return
			}
		}
	}
}

// cursor is a forward-only traversal position over a snapshot of the slot
// arrays: a slot index plus the arrays it indexes. A fresh cursor sits
// before the first slot; next advances to the next occupied slot and
// reports whether there is one. Once the terminal position (one past the
// last slot) is reached, next reports false forever. Mutating the table
// invalidates the cursor's view but never its memory safety.
type cursor[E any] struct {
	ctrls []ctrl
	slots []E
	index int
}

func (c *cursor[E]) next() bool {
	for c.index++; c.index < len(c.slots); c.index++ {
		if c.ctrls[c.index] == ctrlFull {
			return true
		}
	}
	c.index = len(c.slots)
	return false
}

// at returns the entry under the cursor. It panics if the cursor is not
// positioned on an entry, which is the case before the first call to next
// and at the terminal position.
func (c *cursor[E]) at() *E {
	if c.index < 0 || c.index >= len(c.slots) || c.ctrls[c.index] != ctrlFull {
		panic("linear: cursor is not positioned on an entry")
	}
	return &c.slots[c.index]
}

// nextPowerOfTwo returns the smallest power of two >= x, minimum 1.
func nextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(x-1))
}

func (t *table[E, K]) checkInvariants() {
	if invariants {
		if len(t.ctrls) != len(t.slots) {
			panic(fmt.Sprintf("invariant failed: len(ctrls)=%d != len(slots)=%d",
				len(t.ctrls), len(t.slots)))
		}
		if bits.OnesCount(uint(len(t.slots))) != 1 {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a power of two",
				len(t.slots)))
		}
		if want := int(t.minLoad * float64(len(t.slots))); t.minUsed != want {
			panic(fmt.Sprintf("invariant failed: minUsed=%d, expected %d", t.minUsed, want))
		}
		if want := int(t.maxLoad * float64(len(t.slots))); t.maxUsed != want {
			panic(fmt.Sprintf("invariant failed: maxUsed=%d, expected %d", t.maxUsed, want))
		}

		mask := len(t.slots) - 1
		var used int
		for i := range t.slots {
			switch t.ctrls[i] {
			case ctrlEmpty:
			case ctrlFull:
				used++
				// Every live entry must sit on a contiguous run of
				// occupied slots starting at its ideal slot, and locate
				// must find it where it is stored.
				key := t.keyOf(&t.slots[i])
				for j := t.ideal(key); j != i; j = (j + 1) & mask {
					if t.ctrls[j] != ctrlFull {
						panic(fmt.Sprintf(
							"invariant failed: gap at %d on the probe run of %v (slot %d)\n%s",
							j, key, i, t.debugString()))
					}
				}
				if j := t.locate(key); j != i {
					panic(fmt.Sprintf("invariant failed: locate(%v)=%d, stored at %d\n%s",
						key, j, i, t.debugString()))
				}
			default:
				panic(fmt.Sprintf("invariant failed: ctrl(%d)=%02x is neither empty nor full",
					i, t.ctrls[i]))
			}
		}
		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}
		if t.used > t.maxUsed {
			panic(fmt.Sprintf("invariant failed: used=%d above the band max %d\n%s",
				t.used, t.maxUsed, t.debugString()))
		}
	}
}

func (t *table[E, K]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  band=[%d,%d]  load=[%v,%v]\n",
		len(t.slots), t.used, t.minUsed, t.maxUsed, t.minLoad, t.maxLoad)
	for i := range t.slots {
		switch c := t.ctrls[i]; c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlFull:
			key := t.keyOf(&t.slots[i])
			fmt.Fprintf(&buf, "  %4d: %v [ideal=%d]\n", i, key, t.ideal(key))
		default:
			fmt.Fprintf(&buf, "  %4d: [ctrl=%02x]\n", i, c)
		}
	}
	return buf.String()
}
