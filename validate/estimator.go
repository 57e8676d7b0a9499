package validate

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/geometry"
)

// Neighbor is a match surrounding the one being judged. Target is nil when
// the neighbor has no correspondence in the target set.
type Neighbor struct {
	Source *feature.Object
	Target *feature.Object
	Status Status
}

// Estimator measures how consistently the neighborhood of a match is
// arranged on both sides. Results are in [0, 1]; no neighbors gives 0.
type Estimator interface {
	Name() string
	Context(source, target *feature.Object, neighbors []Neighbor) float64
}

// NewEstimator returns the estimator registered under name
func NewEstimator(name string, angleTolerance float64) (Estimator, error) {
	switch name {
	case EstimatorAngle:
		return AngleEstimator{Tolerance: angleTolerance}, nil
	case EstimatorSequence:
		return SequenceEstimator{}, nil
	}
	return nil, eris.Wrapf(ErrConfig, "unknown estimator %q", name)
}

func centroid(o *feature.Object) (orb.Point, bool) {
	if o == nil || o.Geometry == nil {
		return orb.Point{}, false
	}
	return geometry.Centroid(o.Geometry), true
}

// AngleEstimator compares the bearing from the source to each neighbor
// source with the bearing from the target to the neighbor target. A
// neighbor agrees when the two bearings are within Tolerance degrees.
type AngleEstimator struct {
	Tolerance float64
}

func (AngleEstimator) Name() string { return EstimatorAngle }

// Bearings is the angular comparison of one neighbor
type Bearings struct {
	Source     float64
	Target     float64
	Difference float64
	// Coincident is set when a neighbor centroid coincides with the center
	// on either side; it agrees only when that holds on both sides.
	Coincident bool
	Matched    bool
	Agrees     bool
}

// Compare measures one neighbor. Neighbors without a target are unmatched
// and never agree.
func (a AngleEstimator) Compare(cs, ct orb.Point, n Neighbor) Bearings {
	ns, okS := centroid(n.Source)
	nt, okT := centroid(n.Target)
	if !okS || !okT {
		return Bearings{}
	}
	b := Bearings{Matched: true}
	var hasS, hasT bool
	b.Source, hasS = geometry.Bearing(cs, ns)
	b.Target, hasT = geometry.Bearing(ct, nt)
	if !hasS || !hasT {
		b.Coincident = true
		b.Agrees = !hasS && !hasT
		if hasS != hasT {
			b.Difference = 180
		}
		return b
	}
	b.Difference = geometry.AngleDifference(b.Source, b.Target)
	b.Agrees = b.Difference <= a.Tolerance
	return b
}

func (a AngleEstimator) Context(source, target *feature.Object, neighbors []Neighbor) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	cs, okS := centroid(source)
	ct, okT := centroid(target)
	if !okS || !okT {
		return 0
	}
	agree := 0
	for _, n := range neighbors {
		if a.Compare(cs, ct, n).Agrees {
			agree++
		}
	}
	return float64(agree) / float64(len(neighbors))
}

// SequenceEstimator orders the neighbors anti-clockwise on both sides and
// measures how much of the source order the target order preserves.
// Invalid neighbors and neighbors without a target are dropped.
type SequenceEstimator struct{}

func (SequenceEstimator) Name() string { return EstimatorSequence }

type placed struct {
	n        Neighbor
	sin, cos float64
}

func place(center, p orb.Point, n Neighbor) placed {
	dx, dy := p[0]-center[0], p[1]-center[1]
	r := math.Hypot(dx, dy)
	if r == 0 {
		return placed{n: n, sin: 0, cos: 1}
	}
	return placed{n: n, sin: dy / r, cos: dx / r}
}

// anticlockwiseBefore orders positions by polar angle from the positive x
// axis without computing the angle: the upper half plane comes first, cos
// decreases through it and increases through the lower half.
func anticlockwiseBefore(a, b placed) bool {
	upperA, upperB := a.sin >= 0, b.sin >= 0
	if upperA != upperB {
		return upperA
	}
	if upperA {
		return a.cos > b.cos
	}
	return a.cos < b.cos
}

func (SequenceEstimator) Context(source, target *feature.Object, neighbors []Neighbor) float64 {
	cs, okS := centroid(source)
	ct, okT := centroid(target)
	if !okS || !okT {
		return 0
	}

	var sources []placed
	var targets []placed
	seenTarget := make(map[int]bool)
	for _, n := range neighbors {
		if n.Status == Invalid {
			continue
		}
		ns, ok := centroid(n.Source)
		if !ok {
			continue
		}
		nt, ok := centroid(n.Target)
		if !ok {
			continue
		}
		sources = append(sources, place(cs, ns, n))
		if !seenTarget[n.Target.ID] {
			seenTarget[n.Target.ID] = true
			targets = append(targets, place(ct, nt, n))
		}
	}
	if len(sources) == 0 {
		return 0
	}
	sort.SliceStable(sources, func(i, j int) bool { return anticlockwiseBefore(sources[i], sources[j]) })
	sort.SliceStable(targets, func(i, j int) bool { return anticlockwiseBefore(targets[i], targets[j]) })

	position := make(map[int]int, len(targets))
	for i, t := range targets {
		position[t.n.Target.ID] = i
	}
	seq := make([]int, len(sources))
	for i, s := range sources {
		seq[i] = position[s.n.Target.ID]
	}

	shorter := math.Min(float64(len(sources)), float64(len(targets)))
	return math.Min(1, float64(longestOrderedRun(seq))/shorter)
}

// longestOrderedRun scans seq from successive start positions, greedily
// extending a non-decreasing run and restarting at the first element the
// previous run skipped.
func longestOrderedRun(seq []int) int {
	if len(seq) == 0 {
		return 0
	}
	best, start := 1, 0
	for start+best < len(seq) {
		next, count, last := -1, 1, seq[start]
		for i := start + 1; i < len(seq); i++ {
			if seq[i] >= last {
				last = seq[i]
				count++
			} else if next == -1 {
				next = i
			}
		}
		if count > best {
			best = count
		}
		if next <= start {
			break
		}
		start = next
	}
	return best
}
