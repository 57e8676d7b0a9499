package feature

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadShapefile reads a .shp file (with its .dbf) into a Set. Objects get
// ids 1..n in record order. DBF field types map to attribute types: N with
// no decimals is Integer, N/F with decimals is Float, D is Date, everything
// else is String.
func LoadShapefile(path, name string) (*Set, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	schema := make([]Field, len(fields))
	for i, f := range fields {
		schema[i] = Field{
			Name: strings.TrimRight(f.String(), "\x00"),
			Type: dbfType(f.Fieldtype, f.Precision),
		}
	}

	var objects []*Object
	skipped := 0
	for reader.Next() {
		n, shape := reader.Shape()
		g, zs := shapeToOrb(shape)
		if g == nil {
			skipped++
			continue
		}

		o := NewObject(n+1, g)
		o.Z = zs
		for i, field := range schema {
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if v := parseDBFValue(raw, field.Type); v != nil {
				o.Attrs[field.Name] = v
			}
		}
		objects = append(objects, o)
	}

	if skipped > 0 {
		zap.L().Debug("feature: skipped shapefile records",
			zap.String("set", name),
			zap.Int("skipped", skipped),
		)
	}

	return NewSet(name, schema, objects)
}

func dbfType(t byte, precision uint8) AttributeType {
	switch t {
	case 'N':
		if precision == 0 {
			return TypeInteger
		}
		return TypeFloat
	case 'F':
		return TypeFloat
	case 'D':
		return TypeDate
	}
	return TypeString
}

func parseDBFValue(raw string, t AttributeType) interface{} {
	if raw == "" {
		return nil
	}
	switch t {
	case TypeInteger:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
		return nil
	case TypeFloat:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	case TypeDate:
		if v, err := time.Parse("20060102", raw); err == nil {
			return v
		}
		return nil
	}
	return raw
}

// shapeToOrb converts a go-shp shape. Polygon parts oriented counter-clockwise
// are holes of the preceding shell.
func shapeToOrb(shape shp.Shape) (orb.Geometry, []float64) {
	switch s := shape.(type) {
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, []float64{s.Z}
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(s.Points))
		for i, p := range s.Points {
			mp[i] = orb.Point{p.X, p.Y}
		}
		return mp, nil
	case *shp.PolyLine:
		return partsToLines(s.Parts, s.Points), nil
	case *shp.PolyLineZ:
		return partsToLines(s.Parts, s.Points), s.ZArray
	case *shp.Polygon:
		return partsToPolygons(s.Parts, s.Points), nil
	case *shp.PolygonZ:
		return partsToPolygons(s.Parts, s.Points), s.ZArray
	}
	return nil, nil
}

func splitParts(parts []int32, points []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start >= end || end > int32(len(points)) {
			continue
		}
		pts := make([]orb.Point, 0, end-start)
		for _, p := range points[start:end] {
			pts = append(pts, orb.Point{p.X, p.Y})
		}
		out = append(out, pts)
	}
	return out
}

func partsToLines(parts []int32, points []shp.Point) orb.Geometry {
	lines := splitParts(parts, points)
	if len(lines) == 0 {
		return nil
	}
	if len(lines) == 1 {
		return orb.LineString(lines[0])
	}
	mls := make(orb.MultiLineString, len(lines))
	for i, l := range lines {
		mls[i] = orb.LineString(l)
	}
	return mls
}

func partsToPolygons(parts []int32, points []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, pts := range splitParts(parts, points) {
		ring := orb.Ring(pts)
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
