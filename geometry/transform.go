package geometry

import (
	"math"

	"github.com/paulmach/orb"
)

// AffineMatrix is a 2D affine transform
// x' = a*x + b*y + tx
// y' = c*x + d*y + ty
type AffineMatrix struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Translation creates a translation-only transform
func Translation(tx, ty float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Ty: ty}
}

// Apply transforms a single point
func (m AffineMatrix) Apply(p orb.Point) orb.Point {
	return orb.Point{
		m.A*p[0] + m.B*p[1] + m.Tx,
		m.C*p[0] + m.D*p[1] + m.Ty,
	}
}

// Transform returns a transformed copy of g
func Transform(g orb.Geometry, m AffineMatrix) orb.Geometry {
	if g == nil {
		return nil
	}
	return mapPoints(orb.Clone(g), m.Apply)
}

// mapPoints rewrites every coordinate of g in place
func mapPoints(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch v := g.(type) {
	case orb.Point:
		return fn(v)
	case orb.MultiPoint:
		for i := range v {
			v[i] = fn(v[i])
		}
	case orb.LineString:
		for i := range v {
			v[i] = fn(v[i])
		}
	case orb.Ring:
		for i := range v {
			v[i] = fn(v[i])
		}
	case orb.MultiLineString:
		for _, ls := range v {
			mapPoints(ls, fn)
		}
	case orb.Polygon:
		for _, r := range v {
			mapPoints(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			mapPoints(p, fn)
		}
	case orb.Collection:
		for i := range v {
			v[i] = mapPoints(v[i], fn)
		}
	}
	return g
}

// NormalizeAngle normalizes an angle in degrees to the range [0, 360).
func NormalizeAngle(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	return degrees
}

// Bearing returns the direction from one point to another in degrees,
// measured anti-clockwise from the positive x axis, in [0, 360).
// The bool is false when the points coincide.
func Bearing(from, to orb.Point) (float64, bool) {
	dx := to[0] - from[0]
	dy := to[1] - from[1]
	if dx == 0 && dy == 0 {
		return 0, false
	}
	return NormalizeAngle(math.Atan2(dy, dx) * 180 / math.Pi), true
}

// AngleDifference is the circular distance between two bearings, in [0, 180]
func AngleDifference(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	return math.Min(d, 360-d)
}
