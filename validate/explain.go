package validate

import (
	"github.com/rotisserie/eris"

	"github.com/kwv/geoconflate/feature"
)

// NeighborDetail describes how one neighbor contributed to a context score
type NeighborDetail struct {
	SourceID int
	TargetID int
	Status   Status
	Bearings
}

// Explanation is a read-only recomputation of one match
type Explanation struct {
	SourceID   int
	TargetID   int
	Committed  bool
	Status     Status
	Estimator  string
	Threshold  float64
	Weight     float64
	Record     ConfidenceRecord
	Neighbors  []NeighborDetail
	Agreements int
}

// Valid reports whether the recomputed confidence passes the threshold
func (x *Explanation) Valid() bool {
	return x.Record.Confidence >= x.Threshold
}

// Explain recomputes the confidence of the pair (sourceID, targetID) against
// the current state without changing it. The pair need not be committed.
func (e *Engine) Explain(sourceID, targetID int) (*Explanation, error) {
	src, ok := e.source.Get(sourceID)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "source object %d", sourceID)
	}
	if e.target == nil {
		return nil, eris.Wrapf(ErrNotFound, "target object %d", targetID)
	}
	tgt, ok := e.target.Get(targetID)
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "target object %d", targetID)
	}

	x := &Explanation{
		SourceID:  sourceID,
		TargetID:  targetID,
		Estimator: e.estimator.Name(),
		Threshold: e.opts.Threshold,
		Weight:    e.opts.ContextWeight,
	}
	exclude := -1
	if id, ok := e.byPair[[2]int{sourceID, targetID}]; ok {
		exclude = id
		x.Committed = true
		x.Status = e.nodes[id].status
	}

	neighbors, radius := e.findNeighbors(src, exclude)
	x.Record = e.evaluate(src, tgt, neighbors)
	x.Record.Radius = radius
	x.Neighbors, x.Agreements = e.describe(src, tgt, neighbors)
	return x, nil
}

func (e *Engine) describe(src, tgt *feature.Object, neighbors []int) ([]NeighborDetail, int) {
	cs, okS := centroid(src)
	ct, okT := centroid(tgt)
	angle := AngleEstimator{Tolerance: e.opts.AngleTolerance}
	out := make([]NeighborDetail, 0, len(neighbors))
	agree := 0
	for _, n := range e.neighborsOf(neighbors) {
		d := NeighborDetail{SourceID: n.Source.ID, Status: n.Status}
		if n.Target != nil {
			d.TargetID = n.Target.ID
		}
		if okS && okT {
			d.Bearings = angle.Compare(cs, ct, n)
		}
		if d.Agrees {
			agree++
		}
		out = append(out, d)
	}
	return out, agree
}
