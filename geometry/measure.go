// Package geometry is the planar geometry layer used by matching and
// validation. It works on paulmach/orb values and provides the operations
// orb does not: minimum distance between arbitrary geometries, discrete
// Hausdorff distance, buffering, overlay areas, normalization and tolerant
// equality.
package geometry

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Dimension returns 0 for puntal, 1 for linear and 2 for areal geometries.
// Collections report their highest component dimension; nil is -1.
func Dimension(g orb.Geometry) int {
	if g == nil {
		return -1
	}
	return g.Dimensions()
}

// Length returns the planar length of a geometry (perimeter for polygons)
func Length(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return planar.Length(g)
}

// Area returns the planar area of the areal components of g
func Area(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return math.Abs(planar.Area(g))
}

// Centroid returns the centroid of g. Areal parts dominate linear parts,
// which dominate points.
func Centroid(g orb.Geometry) orb.Point {
	if g == nil {
		return orb.Point{}
	}
	c, _ := planar.CentroidArea(g)
	return c
}

// Expand returns the bound grown by d on every side
func Expand(b orb.Bound, d float64) orb.Bound {
	if d <= 0 {
		return b
	}
	return b.Pad(d)
}

// components flattens g into points, line strings and polygons
func components(g orb.Geometry) []orb.Geometry {
	switch v := g.(type) {
	case nil:
		return nil
	case orb.Point, orb.LineString, orb.Polygon:
		return []orb.Geometry{v}
	case orb.Ring:
		return []orb.Geometry{orb.Polygon{v}}
	case orb.Bound:
		return []orb.Geometry{v.ToPolygon()}
	case orb.MultiPoint:
		out := make([]orb.Geometry, len(v))
		for i, p := range v {
			out[i] = p
		}
		return out
	case orb.MultiLineString:
		out := make([]orb.Geometry, len(v))
		for i, ls := range v {
			out[i] = ls
		}
		return out
	case orb.MultiPolygon:
		out := make([]orb.Geometry, len(v))
		for i, p := range v {
			out[i] = p
		}
		return out
	case orb.Collection:
		var out []orb.Geometry
		for _, c := range v {
			out = append(out, components(c)...)
		}
		return out
	}
	return nil
}

// vertices returns every coordinate of g in traversal order
func vertices(g orb.Geometry) []orb.Point {
	var out []orb.Point
	for _, c := range components(g) {
		switch v := c.(type) {
		case orb.Point:
			out = append(out, v)
		case orb.LineString:
			out = append(out, v...)
		case orb.Polygon:
			for _, r := range v {
				out = append(out, r...)
			}
		}
	}
	return out
}

// Vertices returns every coordinate of g in traversal order
func Vertices(g orb.Geometry) []orb.Point {
	return vertices(g)
}

type segment struct {
	a, b orb.Point
}

// segments returns the edges of linear components and polygon rings.
// Points contribute a zero-length segment.
func segments(g orb.Geometry) []segment {
	var out []segment
	appendPath := func(pts []orb.Point) {
		if len(pts) == 1 {
			out = append(out, segment{pts[0], pts[0]})
			return
		}
		for i := 0; i+1 < len(pts); i++ {
			out = append(out, segment{pts[i], pts[i+1]})
		}
	}
	for _, c := range components(g) {
		switch v := c.(type) {
		case orb.Point:
			out = append(out, segment{v, v})
		case orb.LineString:
			appendPath(v)
		case orb.Polygon:
			for _, r := range v {
				appendPath(r)
			}
		}
	}
	return out
}

// polygonContains reports whether p lies inside or on the boundary of any
// areal component of g
func polygonContains(g orb.Geometry, p orb.Point) bool {
	for _, c := range components(g) {
		poly, ok := c.(orb.Polygon)
		if !ok || len(poly) == 0 {
			continue
		}
		if planar.PolygonContains(poly, p) {
			return true
		}
		for _, s := range segments(poly) {
			if pointSegmentDistance(p, s) == 0 {
				return true
			}
		}
	}
	return false
}

// InteriorPoint returns a point guaranteed to lie on g: for areas a point
// inside the polygon, for lines the interior vertex nearest the centroid,
// for points the point nearest the centroid.
func InteriorPoint(g orb.Geometry) orb.Point {
	if g == nil {
		return orb.Point{}
	}
	centroid := Centroid(g)
	switch Dimension(g) {
	case 2:
		if polygonContains(g, centroid) {
			return centroid
		}
		if p, ok := scanlinePoint(g); ok {
			return p
		}
		return centroid
	case 1:
		var interior, ends []orb.Point
		for _, c := range components(g) {
			ls, ok := c.(orb.LineString)
			if !ok {
				continue
			}
			for i, p := range ls {
				if i == 0 || i == len(ls)-1 {
					ends = append(ends, p)
				} else {
					interior = append(interior, p)
				}
			}
		}
		if len(interior) > 0 {
			return nearest(interior, centroid)
		}
		if len(ends) > 0 {
			return nearest(ends, centroid)
		}
	}
	return nearest(vertices(g), centroid)
}

func nearest(pts []orb.Point, to orb.Point) orb.Point {
	if len(pts) == 0 {
		return to
	}
	best := pts[0]
	bestDist := planar.DistanceSquared(best, to)
	for _, p := range pts[1:] {
		if d := planar.DistanceSquared(p, to); d < bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// scanlinePoint intersects the horizontal line through the bound center with
// every ring and returns the midpoint of the widest inside interval
func scanlinePoint(g orb.Geometry) (orb.Point, bool) {
	y := g.Bound().Center()[1]
	var xs []float64
	for _, s := range segments(g) {
		y0, y1 := s.a[1], s.b[1]
		if (y0 > y) == (y1 > y) {
			continue
		}
		t := (y - y0) / (y1 - y0)
		xs = append(xs, s.a[0]+t*(s.b[0]-s.a[0]))
	}
	if len(xs) < 2 {
		return orb.Point{}, false
	}
	sort.Float64s(xs)
	bestWidth := -1.0
	var best orb.Point
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > bestWidth {
			bestWidth = w
			best = orb.Point{(xs[i] + xs[i+1]) / 2, y}
		}
	}
	return best, bestWidth >= 0
}
