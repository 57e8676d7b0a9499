package output

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeEWKB converts an orb geometry to little-endian EWKB with the given
// SRID. A nil geometry gives nil bytes.
func EncodeEWKB(g orb.Geometry, srid int) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	t, err := toGeom(g)
	if err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(withSRID(t, srid), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "output: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB parses EWKB into an orb geometry and its SRID.
// Empty input gives a nil geometry.
func DecodeEWKB(data []byte) (orb.Geometry, int, error) {
	if len(data) == 0 {
		return nil, 0, nil
	}
	t, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, 0, eris.Wrap(err, "output: decode EWKB")
	}
	g, err := fromGeom(t)
	if err != nil {
		return nil, 0, err
	}
	return g, t.SRID(), nil
}

func coords(pts []orb.Point) []geom.Coord {
	out := make([]geom.Coord, len(pts))
	for i, p := range pts {
		out[i] = geom.Coord{p[0], p[1]}
	}
	return out
}

func rings(p orb.Polygon) [][]geom.Coord {
	out := make([][]geom.Coord, len(p))
	for i, r := range p {
		out[i] = coords(r)
	}
	return out
}

func toGeom(g orb.Geometry) (geom.T, error) {
	switch v := g.(type) {
	case orb.Point:
		return geom.NewPointFlat(geom.XY, []float64{v[0], v[1]}), nil
	case orb.MultiPoint:
		return geom.NewMultiPoint(geom.XY).SetCoords(coords(v))
	case orb.LineString:
		return geom.NewLineString(geom.XY).SetCoords(coords(v))
	case orb.MultiLineString:
		cs := make([][]geom.Coord, len(v))
		for i, ls := range v {
			cs[i] = coords(ls)
		}
		return geom.NewMultiLineString(geom.XY).SetCoords(cs)
	case orb.Ring:
		return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords(v)})
	case orb.Polygon:
		return geom.NewPolygon(geom.XY).SetCoords(rings(v))
	case orb.MultiPolygon:
		cs := make([][][]geom.Coord, len(v))
		for i, p := range v {
			cs[i] = rings(p)
		}
		return geom.NewMultiPolygon(geom.XY).SetCoords(cs)
	case orb.Bound:
		return toGeom(v.ToPolygon())
	}
	return nil, eris.Errorf("output: unsupported geometry %T", g)
}

func withSRID(t geom.T, srid int) geom.T {
	switch v := t.(type) {
	case *geom.Point:
		return v.SetSRID(srid)
	case *geom.MultiPoint:
		return v.SetSRID(srid)
	case *geom.LineString:
		return v.SetSRID(srid)
	case *geom.MultiLineString:
		return v.SetSRID(srid)
	case *geom.Polygon:
		return v.SetSRID(srid)
	case *geom.MultiPolygon:
		return v.SetSRID(srid)
	}
	return t
}

func points(cs []geom.Coord) []orb.Point {
	out := make([]orb.Point, len(cs))
	for i, c := range cs {
		out[i] = orb.Point{c.X(), c.Y()}
	}
	return out
}

func polygon(cs [][]geom.Coord) orb.Polygon {
	out := make(orb.Polygon, len(cs))
	for i, r := range cs {
		out[i] = orb.Ring(points(r))
	}
	return out
}

func fromGeom(t geom.T) (orb.Geometry, error) {
	switch v := t.(type) {
	case *geom.Point:
		return orb.Point{v.X(), v.Y()}, nil
	case *geom.MultiPoint:
		return orb.MultiPoint(points(v.Coords())), nil
	case *geom.LineString:
		return orb.LineString(points(v.Coords())), nil
	case *geom.MultiLineString:
		var out orb.MultiLineString
		for _, ls := range v.Coords() {
			out = append(out, orb.LineString(points(ls)))
		}
		return out, nil
	case *geom.Polygon:
		return polygon(v.Coords()), nil
	case *geom.MultiPolygon:
		var out orb.MultiPolygon
		for _, p := range v.Coords() {
			out = append(out, polygon(p))
		}
		return out, nil
	}
	return nil, eris.Errorf("output: unsupported EWKB geometry %T", t)
}
