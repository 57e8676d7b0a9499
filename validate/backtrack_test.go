package validate

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/geoconflate/feature"
)

// votingEstimator scores a match by the share of its neighbors that agree.
// Rejected sources always score 0, and a match with fewer neighbors than
// its need scores 0. No neighbors and no need scores 1.
type votingEstimator struct {
	reject   map[int]bool
	disagree map[int]bool
	need     map[int]int
}

func (votingEstimator) Name() string { return "voting" }

func (v votingEstimator) Context(source, _ *feature.Object, neighbors []Neighbor) float64 {
	if v.reject[source.ID] || len(neighbors) < v.need[source.ID] {
		return 0
	}
	if len(neighbors) == 0 {
		return 1
	}
	agree := 0
	for _, n := range neighbors {
		if !v.disagree[n.Source.ID] {
			agree++
		}
	}
	return float64(agree) / float64(len(neighbors))
}

// pointEngine matches identical point sets one to one. Neighbors are the
// matches within 1.5 of each other and confidence is the context alone.
func pointEngine(t *testing.T, pts []orb.Point, est votingEstimator, mutate func(*Options)) *Engine {
	t.Helper()
	objs := func() []*feature.Object {
		out := make([]*feature.Object, len(pts))
		for i, p := range pts {
			out[i] = feature.NewObject(i+1, p)
		}
		return out
	}
	source, err := feature.NewSet("source", nil, objs())
	require.NoError(t, err)
	target, err := feature.NewSet("target", nil, objs())
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.ContextWeight = 1
	opts.MinRadius = 1.5
	opts.MaxRadiusSteps = 1
	opts.DiscoverMissing = false
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(source, target, pairs(t, source, target, nil), opts)
	require.NoError(t, err)
	e.estimator = est
	return e
}

func assertStatuses(t *testing.T, e *Engine, want map[int]Status) {
	t.Helper()
	for id, st := range want {
		got, ok := e.Status(id, id)
		require.True(t, ok)
		assert.Equal(t, st, got, "match %d", id)
	}
}

var line = []orb.Point{{1, 0}, {2, 0}, {3, 0}, {4, 0}, {5, 0}}

// each inner match needs both of its line neighbors and the last one is
// rejected, so its invalidation unwinds the whole line
func cascadeEstimator() votingEstimator {
	return votingEstimator{
		reject: map[int]bool{5: true},
		need:   map[int]int{1: 1, 2: 2, 3: 2, 4: 2},
	}
}

func TestBacktrackingCascade(t *testing.T) {
	e := pointEngine(t, line, cascadeEstimator(), nil)
	r := run(t, e)

	assertStatuses(t, e, map[int]Status{1: Invalid, 2: Invalid, 3: Invalid, 4: Invalid, 5: Invalid})
	assert.Equal(t, 4, r.Backtracks)
	assert.True(t, r.Converged)
	assert.Empty(t, r.Warnings)
	assert.Empty(t, e.Graph().CheckSymmetry())
}

func TestBacktrackingStopsAtCap(t *testing.T) {
	e := pointEngine(t, line, cascadeEstimator(), func(o *Options) { o.MaxBacktrack = 2 })
	r := run(t, e)

	assertStatuses(t, e, map[int]Status{1: Valid, 2: Valid, 3: Invalid, 4: Invalid, 5: Invalid})
	assert.Equal(t, 2, r.Backtracks)
	assert.False(t, r.Converged)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "stopped after 2 steps")
}

func TestBacktrackingRestoresMatch(t *testing.T) {
	// 2 is judged while the rejected 3 still counts as a dissenting
	// neighbor; once 3 is invalidated 2 is judged again and passes
	e := pointEngine(t, line[:3], votingEstimator{
		reject:   map[int]bool{3: true},
		disagree: map[int]bool{3: true},
	}, nil)
	r := run(t, e)

	assertStatuses(t, e, map[int]Status{1: Valid, 2: Valid, 3: Invalid})
	assert.Equal(t, 2, r.Backtracks)
	assert.True(t, r.Converged)
	assert.Empty(t, r.Warnings)

	x, err := e.Explain(2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x.Record.Confidence, 1e-12)
	assert.Len(t, x.Neighbors, 1, "the invalidated dissenter no longer counts")
}

// three mutual neighbors: 1 and 2 both lean on the rejected 3, and 2 also
// needs 1 and 3 together
var triangle = []orb.Point{{0, 0}, {1, 0}, {0.5, 0.9}}

func TestBacktrackingRevisitAtFixedPoint(t *testing.T) {
	// 1 is reached again after 2 flips, but still passes on its own
	e := pointEngine(t, triangle, votingEstimator{
		reject: map[int]bool{3: true},
		need:   map[int]int{2: 2},
	}, nil)
	r := run(t, e)

	assertStatuses(t, e, map[int]Status{1: Valid, 2: Invalid, 3: Invalid})
	assert.True(t, r.Converged)
	assert.Empty(t, r.Warnings)
}

func TestBacktrackingRevisitThatWouldFlip(t *testing.T) {
	// 1 needs a neighbor, and after 2 flips it has none left; the revisit
	// leaves it Valid and reports the pass as not converged
	e := pointEngine(t, triangle, votingEstimator{
		reject: map[int]bool{3: true},
		need:   map[int]int{1: 1, 2: 2},
	}, nil)
	r := run(t, e)

	assertStatuses(t, e, map[int]Status{1: Valid, 2: Invalid, 3: Invalid})
	assert.False(t, r.Converged)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "revisited")
}
