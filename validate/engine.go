package validate

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/geometry"
	"github.com/kwv/geoconflate/match"
	"github.com/kwv/geoconflate/search"
)

type node struct {
	match  match.Match
	status Status
	record ConfidenceRecord
}

// Engine validates a committed match set. It owns the support graph and
// the per-match state; one Engine serves one validation pass.
type Engine struct {
	opts       Options
	source     *feature.Set
	target     *feature.Set
	estimator  Estimator
	similarity ObjectSimilarity

	nodes    []*node
	bySource map[int][]int
	byPair   map[[2]int]int
	graph    *SupportGraph

	sourceIndex *search.Index
	targetIndex *search.Index
	extent      float64

	cursor     int
	backtracks int
	warnings   []string
}

// NewEngine prepares validation of matches between source and target.
// Matches are visited in Match ordering.
func NewEngine(source, target *feature.Set, matches *match.MatchMap, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	est, err := NewEstimator(opts.Estimator, opts.AngleTolerance)
	if err != nil {
		return nil, err
	}
	sim, err := NewObjectSimilarity(opts.Similarity, opts.LinearBuffer)
	if err != nil {
		return nil, err
	}

	b := source.Bound()
	e := &Engine{
		opts:        opts,
		source:      source,
		target:      target,
		estimator:   est,
		similarity:  sim,
		bySource:    make(map[int][]int),
		byPair:      make(map[[2]int]int),
		graph:       NewSupportGraph(),
		sourceIndex: search.NewIndex(source),
		extent:      math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]),
	}
	if matches != nil {
		for _, m := range matches.All() {
			e.addNode(m, Undiscovered)
		}
	}
	return e, nil
}

func (e *Engine) addNode(m match.Match, status Status) int {
	id := len(e.nodes)
	e.nodes = append(e.nodes, &node{match: m, status: status})
	e.bySource[m.SourceID()] = append(e.bySource[m.SourceID()], id)
	e.byPair[[2]int{m.SourceID(), m.TargetID()}] = id
	return id
}

// Graph exposes the support graph
func (e *Engine) Graph() *SupportGraph { return e.graph }

// Status returns the current status of the match between two objects
func (e *Engine) Status(sourceID, targetID int) (Status, bool) {
	id, ok := e.byPair[[2]int{sourceID, targetID}]
	if !ok {
		return 0, false
	}
	return e.nodes[id].status, true
}

// Run traverses the matches breadth first from an arbitrary seed, reseeding
// for every disconnected cluster, then looks for missing matches. On
// cancellation the partial report is returned with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	var queue []int
	for {
		if len(queue) == 0 {
			seed := e.nextUndiscovered()
			if seed < 0 {
				break
			}
			e.nodes[seed].status = Queued
			queue = append(queue, seed)
		}
		if err := ctx.Err(); err != nil {
			return e.report(), err
		}

		id := queue[0]
		queue = queue[1:]
		for _, n := range e.discover(id) {
			if e.nodes[n].status == Undiscovered {
				e.nodes[n].status = Queued
				queue = append(queue, n)
			}
		}
		e.score(id)
		if e.nodes[id].record.Confidence >= e.opts.Threshold {
			e.nodes[id].status = Valid
			continue
		}
		e.nodes[id].status = Invalid
		e.backtrack(id)
	}

	if e.opts.DiscoverMissing {
		if err := e.discoverMissing(ctx); err != nil {
			return e.report(), err
		}
	}

	r := e.report()
	zap.L().Info("validation complete",
		zap.Int("valid", r.Count(Valid)),
		zap.Int("invalid", r.Count(Invalid)),
		zap.Int("new", r.Count(New)),
		zap.Int("backtracks", r.Backtracks),
		zap.Int("clusters", r.Clusters),
		zap.Bool("converged", r.Converged),
	)
	return r, nil
}

func (e *Engine) nextUndiscovered() int {
	for ; e.cursor < len(e.nodes); e.cursor++ {
		if e.nodes[e.cursor].status == Undiscovered {
			return e.cursor
		}
	}
	return -1
}

// discover finds the neighbors of a committed match and rewrites its
// support edges
func (e *Engine) discover(id int) []int {
	n := e.nodes[id]
	neighbors, radius := e.findNeighbors(n.match.Source, id)
	e.graph.SetSupportedBy(id, neighbors, n.status == New)
	n.record.Radius = radius
	n.record.Neighbors = len(neighbors)
	return neighbors
}

func (e *Engine) startRadius(g orb.Geometry) float64 {
	if r := geometry.Length(g) / 16; r > 0 {
		return r
	}
	if r := math.Sqrt(geometry.Area(g)) / 16; r > 0 {
		return r
	}
	return e.opts.MinRadius
}

// findNeighbors grows a search radius around src until enough usable
// matches are found, the radius covers the whole source extent, or the step
// cap is reached. Invalid and New matches are never neighbors.
func (e *Engine) findNeighbors(src *feature.Object, exclude int) ([]int, float64) {
	if src == nil || src.Geometry == nil {
		return nil, 0
	}
	radius := e.startRadius(src.Geometry)
	for step := 1; ; step++ {
		found := e.neighborsWithin(src, exclude, radius)
		if len(found) >= e.opts.MinNeighbors || radius > e.extent || step >= e.opts.MaxRadiusSteps {
			return found, radius
		}
		radius *= e.opts.RadiusGrowth
	}
}

func (e *Engine) neighborsWithin(src *feature.Object, exclude int, radius float64) []int {
	var out []int
	for _, o := range e.sourceIndex.Query(geometry.Expand(src.Geometry.Bound(), radius)) {
		if o.ID == src.ID {
			continue
		}
		ids := e.bySource[o.ID]
		if len(ids) == 0 || !geometry.WithinDistance(src.Geometry, o.Geometry, radius) {
			continue
		}
		for _, id := range ids {
			if id == exclude {
				continue
			}
			if st := e.nodes[id].status; st == Invalid || st == New {
				continue
			}
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) neighborsOf(ids []int) []Neighbor {
	out := make([]Neighbor, 0, len(ids))
	for _, id := range ids {
		n := e.nodes[id]
		out = append(out, Neighbor{Source: n.match.Source, Target: n.match.Target, Status: n.status})
	}
	return out
}

// evaluate computes the confidence of a pair against a set of neighbors
// without touching engine state
func (e *Engine) evaluate(source, target *feature.Object, neighbors []int) ConfidenceRecord {
	var rec ConfidenceRecord
	rec.Neighbors = len(neighbors)
	rec.Context = e.estimator.Context(source, target, e.neighborsOf(neighbors))
	if source != nil && target != nil {
		rec.Object = e.similarity.Score(source.Geometry, target.Geometry)
	}
	w := e.opts.ContextWeight
	rec.Confidence = w*rec.Context + (1-w)*rec.Object
	return rec
}

func (e *Engine) score(id int) {
	n := e.nodes[id]
	rec := e.evaluate(n.match.Source, n.match.Target, e.graph.SupportedBy(id))
	rec.Radius = n.record.Radius
	n.record = rec
}

// backtrack re-judges every match that used an invalidated match as a
// neighbor. Valid to Invalid flips cascade through their own supporters;
// Invalid to Valid flips stop. A match reached again after it was
// processed in the same pass is left as is. The pass is reported as not
// converged when such a match would now change status, or when it hits
// MaxBacktrack.
func (e *Engine) backtrack(start int) {
	processed := map[int]bool{start: true}
	pending := map[int]bool{}
	var work []int
	push := func(from int) {
		for _, s := range e.graph.Supports(from) {
			if pending[s] {
				continue
			}
			if processed[s] {
				if e.nodes[s].status != Valid || !e.wouldChange(s) {
					continue
				}
				e.warn(fmt.Sprintf("validation did not converge: match %s revisited while backtracking from %s",
					e.nodes[s].match, e.nodes[start].match))
				continue
			}
			pending[s] = true
			work = append(work, s)
		}
	}
	push(start)

	steps := 0
	for len(work) > 0 {
		s := work[0]
		work = work[1:]
		delete(pending, s)
		processed[s] = true

		n := e.nodes[s]
		if n.status != Valid && n.status != Invalid {
			continue
		}
		if steps >= e.opts.MaxBacktrack {
			e.warn(fmt.Sprintf("validation did not converge: backtracking from %s stopped after %d steps",
				e.nodes[start].match, steps))
			return
		}
		steps++
		e.backtracks++

		e.discover(s)
		e.score(s)
		valid := n.record.Confidence >= e.opts.Threshold
		switch {
		case n.status == Valid && !valid:
			n.status = Invalid
			zap.L().Debug("match invalidated by backtracking", zap.Stringer("match", n.match))
			push(s)
		case n.status == Invalid && valid:
			n.status = Valid
			zap.L().Debug("match restored by backtracking", zap.Stringer("match", n.match))
		}
	}
}

// wouldChange re-judges a match against its current neighborhood without
// touching engine state
func (e *Engine) wouldChange(id int) bool {
	n := e.nodes[id]
	neighbors, _ := e.findNeighbors(n.match.Source, id)
	rec := e.evaluate(n.match.Source, n.match.Target, neighbors)
	return (rec.Confidence >= e.opts.Threshold) != (n.status == Valid)
}

func (e *Engine) warn(msg string) {
	e.warnings = append(e.warnings, msg)
	zap.L().Warn(msg)
}

// Outcome is the final state of one match
type Outcome struct {
	Match  match.Match
	Status Status
	Record ConfidenceRecord
	// SupportedBy holds indices into Report.Outcomes
	SupportedBy []int
}

// Report is the result of a validation pass
type Report struct {
	Outcomes   []Outcome
	Warnings   []string
	Converged  bool
	Backtracks int
	Clusters   int
}

// Filter returns the outcomes with the given status
func (r *Report) Filter(s Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

// Count returns the number of outcomes with the given status
func (r *Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

func (e *Engine) report() *Report {
	r := &Report{
		Outcomes:   make([]Outcome, len(e.nodes)),
		Warnings:   append([]string(nil), e.warnings...),
		Converged:  len(e.warnings) == 0,
		Backtracks: e.backtracks,
		Clusters:   e.graph.Clusters(len(e.nodes)),
	}
	for i, n := range e.nodes {
		r.Outcomes[i] = Outcome{
			Match:       n.match,
			Status:      n.status,
			Record:      n.record,
			SupportedBy: e.graph.SupportedBy(i),
		}
	}
	return r
}
