package matcher

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/geometry"
)

// Default tunables of the geometry matchers
const (
	DefaultDistance   = 1.0
	DefaultMinOverlap = 50.0
)

func init() {
	registerGeometry("equals-exact-2d", func(o Options) GeometryMatcher {
		return &equalityMatcher{geometryBase: newBase("equals-exact-2d", NotApplicable, NotApplicable)}
	})
	registerGeometry("equals-exact-3d", func(o Options) GeometryMatcher {
		return &equalityMatcher{geometryBase: newBase("equals-exact-3d", NotApplicable, NotApplicable), withZ: true}
	})
	registerGeometry("equals-normalized-2d", func(o Options) GeometryMatcher {
		return &equalityMatcher{geometryBase: newBase("equals-normalized-2d", NotApplicable, NotApplicable), normalized: true}
	})
	registerGeometry("equals-tolerance", func(o Options) GeometryMatcher {
		return &equalityMatcher{
			geometryBase: newBase("equals-tolerance", Limit(o.maxDistance(DefaultDistance)), NotApplicable),
			normalized:   true,
			tolerant:     true,
		}
	})
	registerGeometry("contains", func(o Options) GeometryMatcher {
		return &predicateMatcher{geometryBase: newBase("contains", NotApplicable, NotApplicable), test: geometry.Covers}
	})
	registerGeometry("within", func(o Options) GeometryMatcher {
		return &predicateMatcher{geometryBase: newBase("within", NotApplicable, NotApplicable), test: func(a, b orb.Geometry) bool {
			return geometry.Covers(b, a)
		}}
	})
	for dim, name := range []string{"intersects-0d", "intersects-1d", "intersects-2d"} {
		dim, name := dim, name
		registerGeometry(name, func(o Options) GeometryMatcher {
			return &predicateMatcher{geometryBase: newBase(name, NotApplicable, NotApplicable), test: func(a, b orb.Geometry) bool {
				return geometry.IntersectionDimension(a, b) == dim
			}}
		})
	}
	registerGeometry("overlaps", func(o Options) GeometryMatcher {
		return &overlapMatcher{geometryBase: newBase("overlaps", NotApplicable, Limit(o.minOverlap(DefaultMinOverlap)))}
	})
	registerGeometry("overlap-ratio", func(o Options) GeometryMatcher {
		return &overlapMatcher{geometryBase: newBase("overlap-ratio", NotApplicable, Limit(o.minOverlap(DefaultMinOverlap))), symmetric: true}
	})
	registerGeometry("min-distance", func(o Options) GeometryMatcher {
		return &distanceMatcher{geometryBase: newBase("min-distance", Limit(o.maxDistance(DefaultDistance)), NotApplicable), measure: minDistance}
	})
	registerGeometry("centroid-distance", func(o Options) GeometryMatcher {
		return &distanceMatcher{geometryBase: newBase("centroid-distance", Limit(o.maxDistance(DefaultDistance)), NotApplicable), measure: centroidDistance}
	})
	registerGeometry("hausdorff", func(o Options) GeometryMatcher {
		return &distanceMatcher{geometryBase: newBase("hausdorff", Limit(o.maxDistance(DefaultDistance)), NotApplicable), measure: hausdorff}
	})
	registerGeometry("semi-hausdorff", func(o Options) GeometryMatcher {
		return &distanceMatcher{geometryBase: newBase("semi-hausdorff", Limit(o.maxDistance(DefaultDistance)), NotApplicable), measure: semiHausdorff}
	})
	registerGeometry("shape", func(o Options) GeometryMatcher {
		return &shapeMatcher{geometryBase: newBase("shape", Limit(o.maxDistance(DefaultDistance)), Limit(o.minOverlap(DefaultMinOverlap)))}
	})
}

func registerGeometry(name string, build func(Options) GeometryMatcher) {
	Register(name, func(o Options) (Matcher, error) {
		return build(o), nil
	})
}

type geometryBase struct {
	name       string
	maxDist    Param
	minOverlap Param
}

func newBase(name string, maxDist, minOverlap Param) geometryBase {
	return geometryBase{name: name, maxDist: maxDist, minOverlap: minOverlap}
}

func (b geometryBase) Name() string       { return b.name }
func (b geometryBase) MaxDistance() Param { return b.maxDist }
func (b geometryBase) MinOverlap() Param  { return b.minOverlap }

// scoreObjects applies a geometry scorer to two objects; missing geometries
// score 0
func scoreObjects(a, b *feature.Object, fn func(orb.Geometry, orb.Geometry) float64) float64 {
	if a == nil || b == nil || a.Geometry == nil || b.Geometry == nil {
		return 0
	}
	return fn(a.Geometry, b.Geometry)
}

type equalityMatcher struct {
	geometryBase
	withZ      bool
	normalized bool
	tolerant   bool
}

func (m *equalityMatcher) ScoreGeometry(a, b orb.Geometry) float64 {
	tol := 0.0
	if m.tolerant {
		tol = m.maxDist.Value
	}
	var equal bool
	if m.normalized {
		equal = geometry.EqualNormalized(a, b, tol)
	} else {
		equal = geometry.EqualExact(a, b, tol)
	}
	if equal {
		return 1
	}
	return 0
}

func (m *equalityMatcher) Score(a, b *feature.Object) float64 {
	s := scoreObjects(a, b, m.ScoreGeometry)
	if s > 0 && m.withZ && !geometry.EqualZ(a.Z, b.Z) {
		return 0
	}
	return s
}

type predicateMatcher struct {
	geometryBase
	test func(a, b orb.Geometry) bool
}

func (m *predicateMatcher) ScoreGeometry(a, b orb.Geometry) float64 {
	if a == nil || b == nil {
		return 0
	}
	if m.test(a, b) {
		return 1
	}
	return 0
}

func (m *predicateMatcher) Score(a, b *feature.Object) float64 {
	return scoreObjects(a, b, m.ScoreGeometry)
}

// overlapMatcher scores the shared area as a percentage of the target area,
// or of the smaller area when symmetric
type overlapMatcher struct {
	geometryBase
	symmetric bool
}

func (m *overlapMatcher) ScoreGeometry(a, b orb.Geometry) float64 {
	ra, rb := geometry.AsRegion(a), geometry.AsRegion(b)
	inter := geometry.IntersectionArea(ra, rb)
	if inter <= 0 {
		return 0
	}
	ref := geometry.RegionArea(rb)
	if m.symmetric {
		ref = math.Min(geometry.RegionArea(ra), ref)
	}
	if ref <= 0 {
		return 0
	}
	return overlapScore(100*inter/ref, m.minOverlap.Value)
}

func (m *overlapMatcher) Score(a, b *feature.Object) float64 {
	return scoreObjects(a, b, m.ScoreGeometry)
}

type distanceMatcher struct {
	geometryBase
	measure func(a, b orb.Geometry, max float64) float64
}

func (m *distanceMatcher) ScoreGeometry(a, b orb.Geometry) float64 {
	if a == nil || b == nil {
		return 0
	}
	return distanceScore(m.measure(a, b, m.maxDist.Value), m.maxDist.Value)
}

func (m *distanceMatcher) Score(a, b *feature.Object) float64 {
	return scoreObjects(a, b, m.ScoreGeometry)
}

func minDistance(a, b orb.Geometry, _ float64) float64 {
	return geometry.Distance(a, b)
}

func centroidDistance(a, b orb.Geometry, _ float64) float64 {
	ca, cb := geometry.Centroid(a), geometry.Centroid(b)
	return math.Hypot(ca[0]-cb[0], ca[1]-cb[1])
}

// densifyFraction splits long segments when the tolerance is much smaller
// than the extent of the measured geometry
func densifyFraction(g orb.Geometry, max float64) float64 {
	extent := geometry.MaxExtent(g)
	if extent > 0 && max > 0 && !math.IsInf(max, 1) && max < 0.75*extent {
		return max / extent
	}
	return 0
}

func hausdorff(a, b orb.Geometry, max float64) float64 {
	return math.Max(
		geometry.SemiHausdorff(a, b, densifyFraction(a, max)),
		geometry.SemiHausdorff(b, a, densifyFraction(b, max)),
	)
}

func semiHausdorff(a, b orb.Geometry, max float64) float64 {
	return geometry.SemiHausdorff(a, b, densifyFraction(a, max))
}

// shapeMatcher compares shapes independently of position: the source is
// moved onto the target centroid before measuring the shared area
type shapeMatcher struct {
	geometryBase
}

func (m *shapeMatcher) ScoreGeometry(a, b orb.Geometry) float64 {
	if a == nil || b == nil {
		return 0
	}
	max := m.maxDist.Value
	ca, cb := geometry.Centroid(a), geometry.Centroid(b)
	if math.Hypot(ca[0]-cb[0], ca[1]-cb[1]) > max {
		return 0
	}
	moved := geometry.Transform(a, geometry.Translation(cb[0]-ca[0], cb[1]-ca[1]))

	ra := shapeRegion(moved, max)
	rb := shapeRegion(b, max)
	inter := geometry.IntersectionArea(ra, rb)
	areaA, areaB := geometry.RegionArea(ra), geometry.RegionArea(rb)
	if inter <= 0 || areaA <= 0 || areaB <= 0 {
		return 0
	}
	percent := 100 * math.Min(inter/areaA, inter/areaB)
	return overlapScore(percent, m.minOverlap.Value)
}

func (m *shapeMatcher) Score(a, b *feature.Object) float64 {
	return scoreObjects(a, b, m.ScoreGeometry)
}

func shapeRegion(g orb.Geometry, max float64) geometry.Region {
	if geometry.Dimension(g) < 2 {
		return geometry.Buffer(g, max/2)
	}
	return geometry.AsRegion(g)
}
