package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// Normalize returns a canonical copy of g: polygon shells run clockwise and
// holes anti-clockwise, rings start at their smallest vertex, line strings
// start at their smaller end, and multi-geometry members are sorted.
func Normalize(g orb.Geometry) orb.Geometry {
	switch v := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return v
	case orb.MultiPoint:
		c := append(orb.MultiPoint(nil), v...)
		sort.Slice(c, func(i, j int) bool { return comparePoints(c[i], c[j]) < 0 })
		return c
	case orb.LineString:
		return normalizeLine(v)
	case orb.Ring:
		return normalizeRing(v, orb.CW)
	case orb.Polygon:
		return normalizePolygon(v)
	case orb.MultiLineString:
		c := make(orb.MultiLineString, len(v))
		for i, ls := range v {
			c[i] = normalizeLine(ls)
		}
		sort.Slice(c, func(i, j int) bool { return comparePaths(c[i], c[j]) < 0 })
		return c
	case orb.MultiPolygon:
		c := make(orb.MultiPolygon, len(v))
		for i, p := range v {
			c[i] = normalizePolygon(p)
		}
		sort.Slice(c, func(i, j int) bool { return comparePaths(shell(c[i]), shell(c[j])) < 0 })
		return c
	case orb.Collection:
		c := make(orb.Collection, len(v))
		for i, m := range v {
			c[i] = Normalize(m)
		}
		sort.SliceStable(c, func(i, j int) bool {
			if c[i].GeoJSONType() != c[j].GeoJSONType() {
				return c[i].GeoJSONType() < c[j].GeoJSONType()
			}
			return comparePaths(vertices(c[i]), vertices(c[j])) < 0
		})
		return c
	case orb.Bound:
		return normalizePolygon(v.ToPolygon())
	}
	return g
}

func shell(p orb.Polygon) []orb.Point {
	if len(p) == 0 {
		return nil
	}
	return p[0]
}

func comparePoints(a, b orb.Point) int {
	switch {
	case a[0] < b[0]:
		return -1
	case a[0] > b[0]:
		return 1
	case a[1] < b[1]:
		return -1
	case a[1] > b[1]:
		return 1
	}
	return 0
}

func comparePaths(a, b []orb.Point) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := comparePoints(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func normalizeLine(ls orb.LineString) orb.LineString {
	c := append(orb.LineString(nil), ls...)
	if len(c) > 1 && comparePoints(c[len(c)-1], c[0]) < 0 {
		c.Reverse()
	}
	return c
}

func normalizeRing(r orb.Ring, orientation orb.Orientation) orb.Ring {
	if len(r) < 4 {
		return append(orb.Ring(nil), r...)
	}
	open := append([]orb.Point(nil), r[:len(r)-1]...)
	if r.Orientation() != orientation {
		for i, j := 0, len(open)-1; i < j; i, j = i+1, j-1 {
			open[i], open[j] = open[j], open[i]
		}
	}
	start := 0
	for i := range open {
		if comparePoints(open[i], open[start]) < 0 {
			start = i
		}
	}
	out := make(orb.Ring, 0, len(r))
	out = append(out, open[start:]...)
	out = append(out, open[:start]...)
	return append(out, out[0])
}

func normalizePolygon(p orb.Polygon) orb.Polygon {
	if len(p) == 0 {
		return orb.Polygon{}
	}
	out := make(orb.Polygon, len(p))
	out[0] = normalizeRing(p[0], orb.CW)
	holes := out[1:]
	for i, h := range p[1:] {
		holes[i] = normalizeRing(h, orb.CCW)
	}
	sort.Slice(holes, func(i, j int) bool { return comparePaths(holes[i], holes[j]) < 0 })
	return out
}

// EqualExact reports whether a and b have the same structure and every pair
// of corresponding coordinates is at most tolerance apart
func EqualExact(a, b orb.Geometry, tolerance float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.GeoJSONType() != b.GeoJSONType() {
		return false
	}
	if tolerance <= 0 {
		return orb.Equal(a, b)
	}
	ca, cb := components(a), components(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if !sameShape(ca[i], cb[i]) {
			return false
		}
	}
	va, vb := vertices(a), vertices(b)
	if len(va) != len(vb) {
		return false
	}
	for i := range va {
		if math.Hypot(va[i][0]-vb[i][0], va[i][1]-vb[i][1]) > tolerance {
			return false
		}
	}
	return true
}

func sameShape(a, b orb.Geometry) bool {
	switch av := a.(type) {
	case orb.Point:
		_, ok := b.(orb.Point)
		return ok
	case orb.LineString:
		bv, ok := b.(orb.LineString)
		return ok && len(av) == len(bv)
	case orb.Polygon:
		bv, ok := b.(orb.Polygon)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if len(av[i]) != len(bv[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// EqualNormalized compares the normalized forms of a and b
func EqualNormalized(a, b orb.Geometry, tolerance float64) bool {
	return EqualExact(Normalize(a), Normalize(b), tolerance)
}

// EqualZ compares two elevation sequences. Missing (NaN) values compare equal
// to each other; a nil sequence equals a sequence of NaN.
func EqualZ(a, b []float64) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	at := func(zs []float64, i int) float64 {
		if i < len(zs) {
			return zs[i]
		}
		return math.NaN()
	}
	if len(a) > 0 && len(b) > 0 && len(a) != len(b) {
		return false
	}
	for i := 0; i < n; i++ {
		za, zb := at(a, i), at(b, i)
		if math.IsNaN(za) && math.IsNaN(zb) {
			continue
		}
		if za != zb {
			return false
		}
	}
	return true
}
