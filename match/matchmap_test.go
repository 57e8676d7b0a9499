package match

import (
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/geoconflate/feature"
)

func obj(id int) *feature.Object {
	return feature.NewObject(id, orb.Point{float64(id), 0})
}

func TestMatchOrdering(t *testing.T) {
	a := New(obj(2), obj(1), 0.9)
	b := New(obj(1), obj(1), 0.5)
	c := New(obj(1), obj(2), 0.5)
	d := New(obj(3), obj(1), 0.5)

	assert.True(t, a.Less(b), "higher score first")
	assert.True(t, b.Less(c), "same score and source, ascending target")
	assert.True(t, c.Less(d), "then ascending source")
	assert.False(t, d.Less(c))

	assert.True(t, New(obj(1), obj(2), 0.5).Equal(c))
	assert.False(t, New(obj(1), obj(2), 0.6).Equal(c))
}

func TestAddKeepsMaximumScore(t *testing.T) {
	mm := NewMatchMap()

	_, stored := mm.Add(New(obj(1), obj(5), 0.6))
	assert.True(t, stored)
	_, stored = mm.Add(New(obj(1), obj(5), 0.9))
	assert.True(t, stored)
	assert.Equal(t, 1, mm.Len())

	got, ok := mm.Get(1, 5)
	require.True(t, ok)
	assert.Equal(t, 0.9, got.Score)

	_, stored = mm.Add(New(obj(1), obj(5), 0.3))
	assert.False(t, stored, "lower score is a no-op")
	got, _ = mm.Get(1, 5)
	assert.Equal(t, 0.9, got.Score)
	assert.Equal(t, 1, mm.Len())
}

func TestAddTieKeepsExisting(t *testing.T) {
	mm := NewMatchMap()
	first := obj(1)
	first.Attrs["tag"] = "first"
	mm.Add(New(first, obj(2), 0.5))

	second := obj(1)
	second.Attrs["tag"] = "second"
	_, stored := mm.Add(New(second, obj(2), 0.5))
	assert.False(t, stored)

	got, _ := mm.Get(1, 2)
	assert.Equal(t, "first", got.Source.Attribute("tag"))
}

func TestDedupProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	mm := NewMatchMap()
	best := 0.0
	for i := 0; i < 200; i++ {
		s := rng.Float64()
		if s > best {
			best = s
		}
		mm.Add(New(obj(3), obj(4), s))
		got, ok := mm.Get(3, 4)
		require.True(t, ok)
		require.Equal(t, best, got.Score)
	}
	assert.Equal(t, 1, mm.Len())
}

func TestMatchesForOrdering(t *testing.T) {
	mm := NewMatchMap()
	mm.Add(New(obj(1), obj(3), 0.2))
	mm.Add(New(obj(1), obj(2), 0.8))
	mm.Add(New(obj(1), obj(4), 0.8))
	mm.Add(New(obj(2), obj(2), 0.5))

	src := mm.MatchesForSource(1)
	require.Len(t, src, 3)
	assert.Equal(t, 2, src[0].TargetID())
	assert.Equal(t, 4, src[1].TargetID())
	assert.Equal(t, 3, src[2].TargetID())

	tgt := mm.MatchesForTarget(2)
	require.Len(t, tgt, 2)
	assert.Equal(t, 1, tgt[0].SourceID())
	assert.Equal(t, 2, tgt[1].SourceID())

	assert.Empty(t, mm.MatchesForSource(99))
	assert.Equal(t, []int{1, 2}, mm.SourceIDs())
	assert.Equal(t, []int{2, 3, 4}, mm.TargetIDs())
}

func TestRemoveKeepsIndicesConsistent(t *testing.T) {
	mm := NewMatchMap()
	mm.Add(New(obj(1), obj(2), 0.4))
	mm.Add(New(obj(1), obj(3), 0.6))

	assert.True(t, mm.Remove(New(obj(1), obj(2), 0)))
	assert.False(t, mm.Remove(New(obj(1), obj(2), 0)))
	assert.Equal(t, 1, mm.Len())
	assert.Empty(t, mm.MatchesForTarget(2))
	assert.Equal(t, []int{3}, mm.TargetIDs())
	require.Len(t, mm.MatchesForSource(1), 1)

	// re-adding after removal creates a fresh record
	mm.Add(New(obj(1), obj(2), 0.1))
	got, ok := mm.Get(1, 2)
	require.True(t, ok)
	assert.Equal(t, 0.1, got.Score)
}

func TestCombine(t *testing.T) {
	mm := NewMatchMap()
	mm.Add(New(obj(1), obj(2), 0.8))
	got, ok := mm.Combine(1, 2, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 0.4, got.Score, 1e-12)
	_, ok = mm.Combine(9, 9, 0.5)
	assert.False(t, ok)
}

func buildCandidates() *MatchMap {
	mm := NewMatchMap()
	mm.Add(New(obj(1), obj(10), 0.9))
	mm.Add(New(obj(1), obj(11), 0.7))
	mm.Add(New(obj(2), obj(10), 0.8))
	mm.Add(New(obj(2), obj(11), 0.6))
	mm.Add(New(obj(3), obj(11), 0.9))
	return mm
}

func TestFilter(t *testing.T) {
	t.Run("no flags returns input", func(t *testing.T) {
		mm := buildCandidates()
		assert.Same(t, mm, mm.Filter(false, false))
	})

	t.Run("single target per source", func(t *testing.T) {
		out := buildCandidates().Filter(true, false)
		seen := map[int]int{}
		for _, m := range out.All() {
			seen[m.SourceID()]++
		}
		for src, n := range seen {
			assert.Equal(t, 1, n, "source %d", src)
		}
		got, ok := out.Get(2, 10)
		require.True(t, ok, "target 10 may be shared")
		assert.Equal(t, 0.8, got.Score)
	})

	t.Run("single source per target", func(t *testing.T) {
		out := buildCandidates().Filter(false, true)
		seen := map[int]int{}
		for _, m := range out.All() {
			seen[m.TargetID()]++
		}
		for tgt, n := range seen {
			assert.Equal(t, 1, n, "target %d", tgt)
		}
	})

	t.Run("one to one", func(t *testing.T) {
		out := buildCandidates().Filter(true, true)
		all := out.All()
		require.Len(t, all, 2)
		// 1->10 (0.9) ties with 3->11 (0.9); source 1 ranks first
		assert.Equal(t, "1->10 (0.900)", all[0].String())
		assert.Equal(t, "3->11 (0.900)", all[1].String())
		_, ok := out.Get(2, 10)
		assert.False(t, ok)
	})

	t.Run("first committed is global maximum", func(t *testing.T) {
		mm := buildCandidates()
		first := mm.Filter(true, true).All()[0]
		assert.True(t, first.Equal(mm.All()[0]))
	})
}
