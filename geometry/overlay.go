package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// IntersectionDimension returns the dimension of the intersection of a and b:
// -1 when they are disjoint, 0 when they only share isolated points, 1 when
// they share a curve of positive length, 2 when they share area.
func IntersectionDimension(a, b orb.Geometry) int {
	if !Intersects(a, b) {
		return -1
	}
	if OverlapArea(a, b) > 0 {
		return 2
	}
	if sharesCurve(a, b) || sharesCurve(b, a) {
		return 1
	}
	return 0
}

// sharesCurve reports whether some linework of a has a piece of positive
// length lying in b (on b's linework or inside b's areas)
func sharesCurve(a, b orb.Geometry) bool {
	sb := segments(b)
	for _, s := range segments(a) {
		if s.a == s.b {
			continue
		}
		for _, t := range collinearOverlaps(s, sb) {
			if t[1]-t[0] > 1e-12 {
				return true
			}
		}
		if Dimension(b) == 2 && segmentPieceInside(s, b) {
			return true
		}
	}
	return false
}

// collinearOverlaps returns the parameter intervals of s shared with
// collinear segments of others
func collinearOverlaps(s segment, others []segment) [][2]float64 {
	var out [][2]float64
	dx := s.b[0] - s.a[0]
	dy := s.b[1] - s.a[1]
	l2 := dx*dx + dy*dy
	for _, t := range others {
		if math.Abs(cross(s.a, s.b, t.a)) > 1e-9*l2 || math.Abs(cross(s.a, s.b, t.b)) > 1e-9*l2 {
			continue
		}
		t0 := ((t.a[0]-s.a[0])*dx + (t.a[1]-s.a[1])*dy) / l2
		t1 := ((t.b[0]-s.a[0])*dx + (t.b[1]-s.a[1])*dy) / l2
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		lo, hi := math.Max(0, t0), math.Min(1, t1)
		if hi > lo {
			out = append(out, [2]float64{lo, hi})
		}
	}
	return out
}

// segmentPieceInside splits s at every crossing with the boundary of b and
// tests the midpoint of each piece
func segmentPieceInside(s segment, b orb.Geometry) bool {
	params := []float64{0, 1}
	dx := s.b[0] - s.a[0]
	dy := s.b[1] - s.a[1]
	l2 := dx*dx + dy*dy
	for _, t := range segments(b) {
		if p, ok := segmentIntersection(s, t); ok {
			params = append(params, ((p[0]-s.a[0])*dx+(p[1]-s.a[1])*dy)/l2)
		}
	}
	sort.Float64s(params)
	for i := 0; i+1 < len(params); i++ {
		if params[i+1]-params[i] <= 1e-12 {
			continue
		}
		m := (params[i] + params[i+1]) / 2
		if polygonContains(b, orb.Point{s.a[0] + m*dx, s.a[1] + m*dy}) {
			return true
		}
	}
	return false
}
