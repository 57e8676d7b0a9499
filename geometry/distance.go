package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func pointSegmentDistance(p orb.Point, s segment) float64 {
	return planar.Distance(p, closestOnSegment(p, s))
}

func closestOnSegment(p orb.Point, s segment) orb.Point {
	dx := s.b[0] - s.a[0]
	dy := s.b[1] - s.a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return s.a
	}
	t := ((p[0]-s.a[0])*dx + (p[1]-s.a[1])*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return orb.Point{s.a[0] + t*dx, s.a[1] + t*dy}
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

func onSegment(p orb.Point, s segment) bool {
	return math.Min(s.a[0], s.b[0]) <= p[0] && p[0] <= math.Max(s.a[0], s.b[0]) &&
		math.Min(s.a[1], s.b[1]) <= p[1] && p[1] <= math.Max(s.a[1], s.b[1])
}

// segmentIntersection reports whether two segments share a point and returns
// one such point
func segmentIntersection(s, t segment) (orb.Point, bool) {
	d1 := cross(t.a, t.b, s.a)
	d2 := cross(t.a, t.b, s.b)
	d3 := cross(s.a, s.b, t.a)
	d4 := cross(s.a, s.b, t.b)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		r := d1 / (d1 - d2)
		return orb.Point{s.a[0] + r*(s.b[0]-s.a[0]), s.a[1] + r*(s.b[1]-s.a[1])}, true
	}
	switch {
	case d1 == 0 && onSegment(s.a, t):
		return s.a, true
	case d2 == 0 && onSegment(s.b, t):
		return s.b, true
	case d3 == 0 && onSegment(t.a, s):
		return t.a, true
	case d4 == 0 && onSegment(t.b, s):
		return t.b, true
	}
	return orb.Point{}, false
}

// PointDistance returns the distance from p to g. Points inside an areal
// component are at distance 0.
func PointDistance(g orb.Geometry, p orb.Point) float64 {
	_, d := closestPoint(g, p)
	return d
}

func closestPoint(g orb.Geometry, p orb.Point) (orb.Point, float64) {
	if polygonContains(g, p) {
		return p, 0
	}
	best := orb.Point{}
	bestDist := math.Inf(1)
	for _, s := range segments(g) {
		c := closestOnSegment(p, s)
		if d := planar.Distance(p, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

// Distance returns the minimum planar distance between two geometries.
// It is 0 when they intersect; +Inf when either is empty.
func Distance(a, b orb.Geometry) float64 {
	_, _, d := ClosestPoints(a, b)
	return d
}

// ClosestPoints returns a point on a and a point on b at minimum distance,
// and that distance
func ClosestPoints(a, b orb.Geometry) (orb.Point, orb.Point, float64) {
	sa, sb := segments(a), segments(b)
	if len(sa) == 0 || len(sb) == 0 {
		return orb.Point{}, orb.Point{}, math.Inf(1)
	}
	for _, s := range sa {
		for _, t := range sb {
			if !segmentBoundsTouch(s, t) {
				continue
			}
			if p, ok := segmentIntersection(s, t); ok {
				return p, p, 0
			}
		}
	}

	var pa, pb orb.Point
	best := math.Inf(1)
	for _, v := range vertices(a) {
		c, d := closestPoint(b, v)
		if d < best {
			pa, pb, best = v, c, d
		}
		if best == 0 {
			return pa, pb, 0
		}
	}
	for _, v := range vertices(b) {
		c, d := closestPoint(a, v)
		if d < best {
			pa, pb, best = c, v, d
		}
		if best == 0 {
			break
		}
	}
	return pa, pb, best
}

func segmentBoundsTouch(s, t segment) bool {
	return math.Max(s.a[0], s.b[0]) >= math.Min(t.a[0], t.b[0]) &&
		math.Max(t.a[0], t.b[0]) >= math.Min(s.a[0], s.b[0]) &&
		math.Max(s.a[1], s.b[1]) >= math.Min(t.a[1], t.b[1]) &&
		math.Max(t.a[1], t.b[1]) >= math.Min(s.a[1], s.b[1])
}

// Intersects reports whether the geometries share at least one point
func Intersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	return Distance(a, b) == 0
}

// WithinDistance reports whether the geometries are at most d apart,
// which is the same as buffer(a, d) intersecting b
func WithinDistance(a, b orb.Geometry, d float64) bool {
	if a == nil || b == nil {
		return false
	}
	if !Expand(a.Bound(), d).Intersects(b.Bound()) {
		return false
	}
	return Distance(a, b) <= d
}

// Covers reports whether every point of b lies in a. Vertices and segment
// midpoints of b are tested against a.
func Covers(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	const eps = 1e-9
	for _, v := range vertices(b) {
		if PointDistance(a, v) > eps {
			return false
		}
	}
	for _, s := range segments(b) {
		mid := orb.Point{(s.a[0] + s.b[0]) / 2, (s.a[1] + s.b[1]) / 2}
		if PointDistance(a, mid) > eps {
			return false
		}
	}
	return len(vertices(b)) > 0
}

// SemiHausdorff is the discrete oriented Hausdorff distance from a to b:
// the largest distance from a vertex of a to b. When densify is in (0, 1),
// each segment of a is split into pieces of at most that fraction of its
// length before measuring.
func SemiHausdorff(a, b orb.Geometry, densify float64) float64 {
	pts := vertices(a)
	if densify > 0 && densify < 1 {
		pts = densified(a, densify)
	}
	if len(pts) == 0 || b == nil {
		return math.Inf(1)
	}
	worst := 0.0
	for _, p := range pts {
		if d := PointDistance(b, p); d > worst {
			worst = d
		}
	}
	return worst
}

// Hausdorff is the symmetric discrete Hausdorff distance
func Hausdorff(a, b orb.Geometry, densify float64) float64 {
	return math.Max(SemiHausdorff(a, b, densify), SemiHausdorff(b, a, densify))
}

func densified(g orb.Geometry, fraction float64) []orb.Point {
	n := int(math.Ceil(1 / fraction))
	var out []orb.Point
	for _, s := range segments(g) {
		for i := 0; i < n; i++ {
			t := float64(i) / float64(n)
			out = append(out, orb.Point{s.a[0] + t*(s.b[0]-s.a[0]), s.a[1] + t*(s.b[1]-s.a[1])})
		}
		out = append(out, s.b)
	}
	return out
}

// MaxExtent is the larger side of the bounding box of g
func MaxExtent(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	b := g.Bound()
	return math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
}
