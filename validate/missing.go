package validate

import (
	"context"

	"go.uber.org/zap"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/geometry"
	"github.com/kwv/geoconflate/match"
	"github.com/kwv/geoconflate/search"
)

// discoverMissing proposes matches for source objects left without one.
// Nearby targets, claimed or not, are judged against the settled
// neighborhood; those passing the threshold are committed as New with
// one-way support edges.
func (e *Engine) discoverMissing(ctx context.Context) error {
	if e.target == nil {
		return nil
	}
	if e.targetIndex == nil {
		e.targetIndex = search.NewIndex(e.target)
	}

	added := 0
	for _, src := range e.source.Objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if src.Geometry == nil || len(e.bySource[src.ID]) > 0 {
			continue
		}
		candidates := e.missingCandidates(src)
		if len(candidates) == 0 {
			continue
		}
		neighbors, radius := e.findNeighbors(src, -1)
		for _, tgt := range candidates {
			rec := e.evaluate(src, tgt, neighbors)
			rec.Radius = radius
			if rec.Confidence < e.opts.Threshold {
				continue
			}
			id := e.addNode(match.New(src, tgt, rec.Confidence), New)
			e.nodes[id].record = rec
			e.graph.SetSupportedBy(id, neighbors, true)
			added++
		}
	}
	if added > 0 {
		zap.L().Debug("missing matches discovered", zap.Int("count", added))
	}
	return nil
}

func (e *Engine) missingCandidates(src *feature.Object) []*feature.Object {
	d := e.opts.MissingSearchDistance
	var out []*feature.Object
	for _, t := range e.targetIndex.Query(geometry.Expand(src.Geometry.Bound(), d)) {
		if geometry.WithinDistance(src.Geometry, t.Geometry, d) {
			out = append(out, t)
		}
	}
	return out
}
