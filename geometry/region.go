package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-geos"
	"go.uber.org/zap"
)

// BufferQuadrantSegments is the number of segments approximating a quarter
// circle in buffers.
var BufferQuadrantSegments = 8

// Region is an areal point set held as a GEOS geometry. The zero Region is
// empty.
type Region struct {
	g *geos.Geom
}

// Empty reports whether r covers no area
func (r Region) Empty() bool {
	return r.g == nil || r.g.IsEmpty()
}

// toGEOS converts an orb geometry through its GeoJSON encoding, repairing it
// when GEOS reports it invalid
func toGEOS(g orb.Geometry) *geos.Geom {
	data, err := geojson.NewGeometry(g).MarshalJSON()
	if err != nil {
		zap.L().Debug("encode geometry", zap.Error(err))
		return nil
	}
	gg, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		zap.L().Debug("decode geometry", zap.Error(err))
		return nil
	}
	if !gg.IsValid() {
		repaired := guard("make valid", func() *geos.Geom {
			return gg.MakeValidWithParams(geos.MakeValidLinework, geos.MakeValidDiscardCollapsed)
		})
		gg.Destroy()
		return repaired
	}
	return gg
}

// guard runs a GEOS operation. A topology failure yields nil.
func guard(op string, fn func() *geos.Geom) (g *geos.Geom) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Debug("geometry operation failed", zap.String("op", op), zap.Any("error", r))
			g = nil
		}
	}()
	return fn()
}

// arealParts returns the non-empty polygons of g
func arealParts(g orb.Geometry) []orb.Geometry {
	var out []orb.Geometry
	for _, c := range components(g) {
		if p, ok := c.(orb.Polygon); ok && len(p) > 0 && len(p[0]) >= 4 {
			out = append(out, p)
		}
	}
	return out
}

// AsRegion returns the areal part of g as a region. Overlapping polygons of a
// collection are dissolved. Puntal and linear geometries yield an empty region.
func AsRegion(g orb.Geometry) Region {
	parts := arealParts(g)
	switch len(parts) {
	case 0:
		return Region{}
	case 1:
		return Region{g: toGEOS(parts[0])}
	}
	c := toGEOS(orb.Collection(parts))
	if c == nil {
		return Region{}
	}
	defer c.Destroy()
	return Region{g: guard("union", c.UnaryUnion)}
}

// Buffer returns the region within distance d of g. A non-positive distance
// yields the areal part of g.
func Buffer(g orb.Geometry, d float64) Region {
	if d <= 0 {
		return AsRegion(g)
	}
	parts := components(g)
	if len(parts) == 0 {
		return Region{}
	}
	var src orb.Geometry = orb.Collection(parts)
	if len(parts) == 1 {
		src = parts[0]
	}
	gg := toGEOS(src)
	if gg == nil {
		return Region{}
	}
	defer gg.Destroy()
	return Region{g: guard("buffer", func() *geos.Geom {
		return gg.Buffer(d, BufferQuadrantSegments)
	})}
}

// Union returns the union of regions
func Union(regions ...Region) Region {
	var acc *geos.Geom
	for _, r := range regions {
		if r.Empty() {
			continue
		}
		if acc == nil {
			acc = r.g
			continue
		}
		prev := acc
		acc = guard("union", func() *geos.Geom { return prev.Union(r.g) })
		if acc == nil {
			return Region{}
		}
	}
	return Region{g: acc}
}

// RegionArea returns the area of r
func RegionArea(r Region) float64 {
	if r.Empty() {
		return 0
	}
	return r.g.Area()
}

// IntersectionArea returns the area of the intersection of two regions
func IntersectionArea(a, b Region) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}
	i := guard("intersection", func() *geos.Geom { return a.g.Intersection(b.g) })
	if i == nil {
		return 0
	}
	defer i.Destroy()
	return i.Area()
}

// OverlapArea returns the area shared by the areal parts of a and b
func OverlapArea(a, b orb.Geometry) float64 {
	if Dimension(a) < 2 || Dimension(b) < 2 {
		return 0
	}
	return IntersectionArea(AsRegion(a), AsRegion(b))
}
