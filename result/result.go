// Package result turns a validation report into output collections.
package result

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/aggregate"
	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/geometry"
	"github.com/kwv/geoconflate/validate"
)

// Attribute names written on result objects
const (
	AttrMatchTarget = "MATCH_TARGET"
	AttrMatchScore  = "MATCH_SCORE"
	AttrConfidence  = "CONFIDENCE"
	AttrStatus      = "STATUS"
	AttrSource      = "SOURCE"
	AttrTarget      = "TARGET"
	AttrScore       = "SCORE"
	AttrCount       = "X_COUNT"
	// AggregatePrefix prefixes attributes copied onto targets
	AggregatePrefix = "X_"
)

// LinkMode selects the end points of link geometries
type LinkMode int

const (
	// LinkInterior joins an interior point of each geometry
	LinkInterior LinkMode = iota
	// LinkClosest joins the closest points of the two geometries
	LinkClosest
)

// Aggregation copies one source attribute onto matched targets
type Aggregation struct {
	Attribute  string
	Aggregator aggregate.Aggregator
}

// Options controls which optional outputs are assembled
type Options struct {
	Links        bool
	LinkMode     LinkMode
	CopyTargets  bool
	Aggregations []Aggregation
}

// Result holds the assembled collections. Objects are clones; the input sets
// are never modified.
type Result struct {
	Valid     []*feature.Object
	Invalid   []*feature.Object
	New       []*feature.Object
	Unmatched []*feature.Object
	Links     []*feature.Object
	Targets   []*feature.Object
}

// Collections returns the non-optional collections keyed by name, plus links
// and targets when they were assembled
func (r *Result) Collections() map[string][]*feature.Object {
	out := map[string][]*feature.Object{
		"valid":     r.Valid,
		"invalid":   r.Invalid,
		"new":       r.New,
		"unmatched": r.Unmatched,
	}
	if r.Links != nil {
		out["links"] = r.Links
	}
	if r.Targets != nil {
		out["targets"] = r.Targets
	}
	return out
}

// Assemble builds the result collections from a validation report.
// A source is unmatched when none of its matches is Valid or New, so a
// source whose matches were all invalidated is both Invalid and Unmatched.
func Assemble(report *validate.Report, source, target *feature.Set, opts Options) *Result {
	r := &Result{}
	matched := make(map[int]bool)
	contributors := make(map[int][]*feature.Object)
	seen := make(map[[2]int]bool)

	for _, o := range report.Outcomes {
		m := o.Match
		if m.Source == nil || m.Target == nil {
			zap.L().Debug("outcome without objects", zap.Stringer("match", m))
			continue
		}
		c := m.Source.Clone()
		c.Attrs[AttrMatchTarget] = int64(m.TargetID())
		c.Attrs[AttrMatchScore] = m.Score
		c.Attrs[AttrConfidence] = o.Record.Confidence

		switch o.Status {
		case validate.Valid:
			r.Valid = append(r.Valid, c)
		case validate.Invalid:
			// rejected matches neither link nor contribute to targets
			r.Invalid = append(r.Invalid, c)
			continue
		case validate.New:
			r.New = append(r.New, c)
		default:
			continue
		}

		matched[m.SourceID()] = true
		key := [2]int{m.SourceID(), m.TargetID()}
		if !seen[key] {
			seen[key] = true
			contributors[m.TargetID()] = append(contributors[m.TargetID()], m.Source)
		}
		if opts.Links {
			r.Links = append(r.Links, link(len(r.Links)+1, m.Source, m.Target, m.Score, o.Status, opts.LinkMode))
		}
	}

	for _, s := range source.Objects {
		if !matched[s.ID] {
			r.Unmatched = append(r.Unmatched, s.Clone())
		}
	}
	if opts.Links && r.Links == nil {
		r.Links = []*feature.Object{}
	}
	if opts.CopyTargets && target != nil {
		r.Targets = copyTargets(target, contributors, opts.Aggregations)
	}
	return r
}

// link builds the linking geometry of one match. Coincident end points give
// a Point.
func link(id int, src, tgt *feature.Object, score float64, status validate.Status, mode LinkMode) *feature.Object {
	var a, b orb.Point
	if mode == LinkClosest {
		a, b, _ = geometry.ClosestPoints(src.Geometry, tgt.Geometry)
	} else {
		a, b = geometry.InteriorPoint(src.Geometry), geometry.InteriorPoint(tgt.Geometry)
	}
	var g orb.Geometry = orb.LineString{a, b}
	if a.Equal(b) {
		g = a
	}
	o := feature.NewObject(id, g)
	o.Attrs[AttrSource] = int64(src.ID)
	o.Attrs[AttrTarget] = int64(tgt.ID)
	o.Attrs[AttrScore] = score
	o.Attrs[AttrStatus] = status.String()
	return o
}

func copyTargets(target *feature.Set, contributors map[int][]*feature.Object, aggs []Aggregation) []*feature.Object {
	out := make([]*feature.Object, 0, len(target.Objects))
	for _, t := range target.Objects {
		c := t.Clone()
		srcs := contributors[t.ID]
		sort.SliceStable(srcs, func(i, j int) bool { return srcs[i].ID < srcs[j].ID })
		c.Attrs[AttrCount] = int64(len(srcs))
		for _, a := range aggs {
			name := fmt.Sprintf("%s%s", AggregatePrefix, a.Attribute)
			if v := a.Aggregator.Aggregate(srcs, a.Attribute); v != nil {
				c.Attrs[name] = v
			}
		}
		out = append(out, c)
	}
	return out
}
