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

import (
	"math/bits"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// checkProbeRuns fails the test if any live entry's circular walk from its
// ideal slot to its stored slot crosses an empty slot, or if the used count
// disagrees with the occupied slots. This is the structural invariant that
// backward-shift deletion exists to preserve.
func checkProbeRuns[E any, K comparable](t *testing.T, tbl *table[E, K]) {
	t.Helper()
	mask := len(tbl.slots) - 1
	var used int
	for i := range tbl.slots {
		if tbl.ctrls[i] != ctrlFull {
			continue
		}
		used++
		key := tbl.keyOf(&tbl.slots[i])
		for j := tbl.ideal(key); j != i; j = (j + 1) & mask {
			if tbl.ctrls[j] != ctrlFull {
				t.Fatalf("gap at %d on the probe run of %v (stored at %d)\n%s",
					j, key, i, tbl.debugString())
			}
		}
	}
	require.Equal(t, tbl.used, used)
}

func TestNextPowerOfTwo(t *testing.T) {
	testCases := []struct {
		x, expected int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{15, 16},
		{16, 16},
		{17, 32},
		{1 << 20, 1 << 20},
		{1<<20 + 1, 1 << 21},
	}
	for _, c := range testCases {
		require.Equal(t, c.expected, nextPowerOfTwo(c.x), "nextPowerOfTwo(%d)", c.x)
	}
}

func TestShiftable(t *testing.T) {
	// Oracle: h lies on the open circular arc (g, i] iff walking forward
	// from g+1 reaches h no later than i. shiftable must be its negation
	// for every position triple with g != i.
	const n = 16
	inArc := func(g, h, i int) bool {
		for j := (g + 1) % n; ; j = (j + 1) % n {
			if j == h {
				return true
			}
			if j == i {
				return false
			}
		}
	}
	for g := 0; g < n; g++ {
		for i := 0; i < n; i++ {
			if g == i {
				continue
			}
			for h := 0; h < n; h++ {
				require.Equal(t, !inArc(g, h, i), shiftable(g, h, i),
					"g=%d h=%d i=%d", g, h, i)
			}
		}
	}
}

// constHash returns an option pinning every key to the same hash value,
// which forces all entries onto a single probe run.
func constHash[K comparable](h uintptr) Option[K] {
	return WithHash[K](func(key *K, seed uintptr) uintptr {
		return h
	})
}

func TestEraseBackwardShift(t *testing.T) {
	layout := func(m *Map[int, int]) []int {
		keys := make([]int, 0, m.Len())
		for i := range m.tbl.slots {
			if m.tbl.ctrls[i] == ctrlFull {
				keys = append(keys, m.tbl.slots[i].Key)
			}
		}
		return keys
	}

	t.Run("head", func(t *testing.T) {
		// All keys share ideal slot 0 and line up in insertion order.
		// Deleting the run's head must shift every survivor back one slot.
		m := NewMap[int, int](16, constHash[int](0))
		for i := 1; i <= 6; i++ {
			m.Put(i, i)
		}
		require.True(t, m.Delete(1))
		require.Equal(t, []int{2, 3, 4, 5, 6}, layout(m))
		require.Equal(t, ctrlEmpty, m.tbl.ctrls[5])
		checkProbeRuns(t, &m.tbl)
	})

	t.Run("middle", func(t *testing.T) {
		m := NewMap[int, int](16, constHash[int](0))
		for i := 1; i <= 6; i++ {
			m.Put(i, i)
		}
		require.True(t, m.Delete(3))
		for i, want := range []int{1, 2, 4, 5, 6} {
			require.Equal(t, want, m.tbl.slots[i].Key)
		}
		checkProbeRuns(t, &m.tbl)
	})

	t.Run("wrap", func(t *testing.T) {
		// Ideal slot 15 in a 16-slot table: the run wraps around the end
		// of the array and the repair pass must follow it across.
		m := NewMap[int, int](16, constHash[int](15))
		for i := 1; i <= 6; i++ {
			m.Put(i, i)
		}
		require.Equal(t, 1, m.tbl.slots[15].Key)
		require.True(t, m.Delete(1))
		require.Equal(t, 2, m.tbl.slots[15].Key)
		for i, want := range []int{3, 4, 5, 6} {
			require.Equal(t, want, m.tbl.slots[i].Key)
		}
		require.Equal(t, ctrlEmpty, m.tbl.ctrls[4])
		checkProbeRuns(t, &m.tbl)
	})

	t.Run("independent-runs", func(t *testing.T) {
		// Two entries whose ideal slot is their stored slot must not move
		// when a neighboring run is repaired.
		m := NewMap[int, int](16, WithHash[int](func(key *int, seed uintptr) uintptr {
			return uintptr(*key)
		}))
		m.Put(1, 1)   // slot 1
		m.Put(2, 2)   // slot 2
		m.Put(17, 17) // ideal 1, displaced to slot 3
		require.Equal(t, 17, m.tbl.slots[3].Key)
		require.True(t, m.Delete(1))
		// 2 sits on its ideal slot and must stay; 17 shifts back to 1.
		require.Equal(t, 17, m.tbl.slots[1].Key)
		require.Equal(t, 2, m.tbl.slots[2].Key)
		require.Equal(t, ctrlEmpty, m.tbl.ctrls[3])
		checkProbeRuns(t, &m.tbl)
	})
}

func TestProbeInvariantAfterEveryErase(t *testing.T) {
	test := func(t *testing.T, m *Map[int, int]) {
		const count = 400
		keys := rand.Perm(count)
		for _, k := range keys {
			m.Put(k, k)
		}
		for _, k := range rand.Perm(count) {
			require.True(t, m.Delete(k))
			checkProbeRuns(t, &m.tbl)
		}
		require.Equal(t, 0, m.Len())
	}

	t.Run("normal", func(t *testing.T) {
		test(t, NewMap[int, int](0))
	})
	t.Run("degenerate", func(t *testing.T) {
		test(t, NewMap[int, int](0, constHash[int](0)))
	})
	t.Run("clustered", func(t *testing.T) {
		// Buckets of 8 keys share each hash value, producing many short
		// runs that merge and split as entries come and go.
		test(t, NewMap[int, int](0, WithHash[int](func(key *int, seed uintptr) uintptr {
			return uintptr(*key / 8)
		})))
	})
}

func TestGrowthScenario(t *testing.T) {
	m := NewMap[int, int](16)
	require.Equal(t, 16, m.Cap())
	require.Equal(t, 11, m.tbl.maxUsed)

	// Inserting up to maxUsed leaves the capacity alone.
	for i := 1; i <= 11; i++ {
		m.Put(i, i)
		require.Equal(t, 16, m.Cap())
	}
	// The 12th insert observes used == maxUsed before placing and doubles.
	m.Put(12, 12)
	require.Equal(t, 32, m.Cap())
	require.Equal(t, 12, m.Len())

	require.True(t, m.Delete(7))
	_, ok := m.Get(7)
	require.False(t, ok)
	for _, k := range []int{1, 2, 3, 4, 5, 6, 8, 9, 10, 11, 12} {
		v, ok := m.Get(k)
		require.True(t, ok, "key %d", k)
		require.Equal(t, k, v)
	}

	// Erasing down to 4 live entries never shrinks: the shrink trigger
	// requires more than 16 live entries, so small tables keep their
	// capacity no matter how empty they become.
	for _, k := range []int{1, 2, 3, 4, 5, 6, 8} {
		require.True(t, m.Delete(k))
		require.Equal(t, 32, m.Cap())
	}
	require.Equal(t, 4, m.Len())
}

func TestShrinkScenario(t *testing.T) {
	m := NewMap[int, int](16)
	for i := 1; i <= 89; i++ {
		m.Put(i, i)
	}
	// Doublings at the 12th, 23rd, and 45th inserts.
	require.Equal(t, 128, m.Cap())
	require.Equal(t, 38, m.tbl.minUsed)

	// Deleting down to the band floor of 38 leaves the capacity alone;
	// the deletion that lands on 37 live entries halves it.
	for i := 89; i >= 39; i-- {
		require.True(t, m.Delete(i))
		require.Equal(t, 128, m.Cap())
	}
	require.True(t, m.Delete(38))
	require.Equal(t, 37, m.Len())
	require.Equal(t, 64, m.Cap())
	require.Equal(t, 19, m.tbl.minUsed)

	for i := 37; i >= 20; i-- {
		require.True(t, m.Delete(i))
		require.Equal(t, 64, m.Cap())
	}
	require.True(t, m.Delete(19))
	require.Equal(t, 18, m.Len())
	require.Equal(t, 32, m.Cap())

	// From here on at most 17 entries remain, so the shrink floor keeps
	// the capacity fixed to the end.
	for i := 18; i >= 1; i-- {
		require.True(t, m.Delete(i))
		require.Equal(t, 32, m.Cap())
	}
	require.Equal(t, 0, m.Len())
}

func TestRehashClamp(t *testing.T) {
	m := NewMap[int, int](16)
	for i := 0; i < 11; i++ {
		m.Put(i, i)
	}

	// A rehash request far below the occupancy is raised until the live
	// entries fit under the maximum load factor, so the re-placement
	// sweep can never run out of room or trigger a nested resize.
	m.Rehash(1)
	require.Equal(t, 16, m.Cap())
	require.Equal(t, 11, m.Len())
	for i := 0; i < 11; i++ {
		v, ok := m.Get(i)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	checkProbeRuns(t, &m.tbl)

	// An empty table honors the request exactly, down to the minimum
	// capacity of 1.
	e := NewMap[int, int](16)
	e.Rehash(0)
	require.Equal(t, 1, e.Cap())
	e.Rehash(24)
	require.Equal(t, 32, e.Cap())
}

func TestLoadFactorBounds(t *testing.T) {
	m := NewMap[int, int](0)
	require.Equal(t, defaultMinLoad, m.MinLoadFactor())
	require.Equal(t, defaultMaxLoad, m.MaxLoadFactor())
	require.Equal(t, 0.0, m.LoadFactor())
	for i := 0; i < 8; i++ {
		m.Put(i, i)
	}
	require.Equal(t, 0.5, m.LoadFactor())

	t.Run("grow-on-set", func(t *testing.T) {
		m := NewMap[int, int](16)
		for i := 0; i < 10; i++ {
			m.Put(i, i)
		}
		require.Equal(t, 16, m.Cap())
		// Dropping the upper bound below the occupancy rehashes at once.
		m.SetMaxLoadFactor(0.5)
		require.Equal(t, 32, m.Cap())
		require.Equal(t, 10, m.Len())
		checkProbeRuns(t, &m.tbl)
	})

	t.Run("shrink-on-set", func(t *testing.T) {
		m := NewMap[int, int](256)
		for i := 0; i < 20; i++ {
			m.Put(i, i)
		}
		require.Equal(t, 256, m.Cap())
		// Raising the lower bound above the occupancy halves the
		// capacity once per call, without the small-table floor that
		// erase applies.
		m.SetMinLoadFactor(0.2)
		require.Equal(t, 128, m.Cap())
		m.SetMinLoadFactor(0.2)
		require.Equal(t, 64, m.Cap())
		// 20 live at capacity 64 is inside [12, 44]: no further move.
		m.SetMinLoadFactor(0.2)
		require.Equal(t, 64, m.Cap())
		require.Equal(t, 20, m.Len())
		checkProbeRuns(t, &m.tbl)
	})

	t.Run("max-bound-wins", func(t *testing.T) {
		// When a shrink request cannot satisfy both bounds, the upper
		// bound wins: probe termination depends on spare capacity, so
		// the clamp may leave the table under the lower bound.
		m := NewMap[int, int](256)
		for i := 0; i < 100; i++ {
			m.Put(i, i)
		}
		m.SetMinLoadFactor(0.5)
		require.Equal(t, 256, m.Cap())
		require.Equal(t, 100, m.Len())
	})

	t.Run("validation", func(t *testing.T) {
		m := NewMap[int, int](0)
		require.Panics(t, func() { m.SetMinLoadFactor(-0.1) })
		require.Panics(t, func() { m.SetMinLoadFactor(0.7) })
		require.Panics(t, func() { m.SetMinLoadFactor(0.9) })
		require.Panics(t, func() { m.SetMaxLoadFactor(0.3) })
		require.Panics(t, func() { m.SetMaxLoadFactor(0.1) })
		require.Panics(t, func() { m.SetMaxLoadFactor(1.0) })
	})
}

func TestReserve(t *testing.T) {
	m := NewMap[int, int](0)
	require.Equal(t, 16, m.Cap())

	// Room for 100 entries under maxLoad 0.7 needs ceil(100/0.7) = 143
	// slots, rounded up to 256.
	m.Reserve(100)
	require.Equal(t, 256, m.Cap())
	for i := 0; i < 100; i++ {
		m.Put(i, i)
		require.Equal(t, 256, m.Cap())
	}

	// Reserving below the live count acts as a shrink request and is
	// clamped so the occupancy still fits.
	m.Reserve(1)
	require.Equal(t, 256, m.Cap())
	require.Equal(t, 100, m.Len())

	e := NewMap[int, int](0)
	e.Reserve(0)
	require.Equal(t, 1, e.Cap())
}

func TestBandNeverExceeded(t *testing.T) {
	m := NewMap[int, int](16)
	for i := 0; i < 1000; i++ {
		m.Put(i, i)
		require.LessOrEqual(t, m.tbl.used, m.tbl.maxUsed)
	}
	// Power-of-two capacity large enough for 1000 entries under 0.7.
	require.Equal(t, 1, bits.OnesCount(uint(m.Cap())))
	require.GreaterOrEqual(t, float64(m.Cap()), 1000/0.7)
}

func TestCursor(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		m := NewMap[int, int](0)
		it := m.Iter()
		require.Panics(t, func() { it.Key() })
		require.False(t, it.Next())
		require.False(t, it.Next())
		require.Panics(t, func() { it.Value() })
	})

	t.Run("walk", func(t *testing.T) {
		m := NewMap[int, int](0)
		e := make(map[int]int)
		for i := 0; i < 100; i++ {
			m.Put(i, i*10)
			e[i] = i * 10
		}
		got := make(map[int]int)
		prev := -1
		it := m.Iter()
		for it.Next() {
			require.Greater(t, it.c.index, prev)
			prev = it.c.index
			got[it.Key()] = it.Value()
		}
		require.Equal(t, e, got)
		// The terminal position is sticky and not dereferenceable.
		require.False(t, it.Next())
		require.Panics(t, func() { it.Key() })
	})

	t.Run("fresh-start", func(t *testing.T) {
		m := NewMap[int, int](0)
		m.Put(1, 1)
		it := m.Iter()
		require.True(t, it.Next())
		require.False(t, it.Next())
		it = m.Iter()
		require.True(t, it.Next())
		require.Equal(t, 1, it.Key())
	})

	t.Run("stale", func(t *testing.T) {
		// A cursor holds the arrays it was created over. Rehashing the
		// map moves the entries to new arrays, so an existing cursor
		// keeps walking the old ones and sees the pre-rehash contents.
		m := NewMap[int, int](0)
		e := make(map[int]int)
		for i := 0; i < 100; i++ {
			m.Put(i, i*10)
			e[i] = i * 10
		}
		it := m.Iter()
		m.Rehash(4 * m.Cap())
		got := make(map[int]int)
		for it.Next() {
			got[it.Key()] = it.Value()
		}
		require.Equal(t, e, got)
	})
}
