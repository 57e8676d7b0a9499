// Package search finds candidate matches: a bounding-box index over the
// target objects, geometric candidate scoring, recovery of N:M matches and
// attribute joins.
package search

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/feature"
)

// entry is one indexed object, keyed in the quadtree on its envelope center
type entry struct {
	obj    *feature.Object
	bound  orb.Bound
	center orb.Point
}

func (e *entry) Point() orb.Point { return e.center }

// Index is a bounding-box index over a set of objects. Objects are stored in
// a quadtree at the center of their envelope; queries widen the search
// window by the largest half-extent and then test envelopes exactly.
type Index struct {
	tree   *quadtree.Quadtree
	all    []*entry
	halfW  float64
	halfH  float64
	bounds orb.Bound
}

// NewIndex indexes every object of set that has a geometry
func NewIndex(set *feature.Set) *Index {
	x := &Index{bounds: set.Bound()}
	x.tree = quadtree.New(x.bounds)
	for _, o := range set.Objects {
		if o.Geometry == nil {
			continue
		}
		b := o.Geometry.Bound()
		e := &entry{obj: o, bound: b, center: b.Center()}
		if err := x.tree.Add(e); err != nil {
			zap.L().Debug("search: object outside index bounds", zap.Int("id", o.ID), zap.Error(err))
			continue
		}
		x.all = append(x.all, e)
		x.halfW = math.Max(x.halfW, (b.Max[0]-b.Min[0])/2)
		x.halfH = math.Max(x.halfH, (b.Max[1]-b.Min[1])/2)
	}
	return x
}

// Len returns the number of indexed objects
func (x *Index) Len() int { return len(x.all) }

// Query returns the objects whose envelope intersects b, in id order.
// An infinite bound returns every indexed object.
func (x *Index) Query(b orb.Bound) []*feature.Object {
	var out []*feature.Object
	if unbounded(b) {
		for _, e := range x.all {
			out = append(out, e.obj)
		}
		feature.SortByID(out)
		return out
	}

	window := orb.Bound{
		Min: orb.Point{b.Min[0] - x.halfW, b.Min[1] - x.halfH},
		Max: orb.Point{b.Max[0] + x.halfW, b.Max[1] + x.halfH},
	}
	for _, p := range x.tree.InBound(nil, window) {
		e := p.(*entry)
		if e.bound.Intersects(b) {
			out = append(out, e.obj)
		}
	}
	feature.SortByID(out)
	return out
}

func unbounded(b orb.Bound) bool {
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return true
		}
	}
	return false
}
