package search

import (
	"context"
	"runtime"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/geometry"
	"github.com/kwv/geoconflate/match"
	"github.com/kwv/geoconflate/matcher"
)

// Thresholds of the N:M recovery pass
const (
	minCoverage       = 0.25
	minTargetCoverage = 0.5
)

// Matcher proposes candidate matches between a source and a target set using
// a geometry matcher, an attribute matcher, or both.
type Matcher struct {
	Source    *feature.Set
	Target    *feature.Set
	Geometry  matcher.GeometryMatcher
	Attribute matcher.StringMatcher
	// Workers bounds the number of sources scored concurrently.
	// Zero means GOMAXPROCS.
	Workers int

	index *Index
}

// New creates a Matcher; either matcher may be nil
func New(source, target *feature.Set, gm matcher.GeometryMatcher, am matcher.StringMatcher) *Matcher {
	return &Matcher{Source: source, Target: target, Geometry: gm, Attribute: am}
}

// Index returns the target index, building it on first use
func (m *Matcher) Index() *Index {
	if m.index == nil {
		m.index = NewIndex(m.Target)
	}
	return m.index
}

func (m *Matcher) sameSet() bool {
	return m.Source == m.Target
}

func (m *Matcher) workers() int {
	if m.Workers > 0 {
		return m.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// MatchAll runs geometry matching, then attribute matching, then resolves
// cardinality with Filter(singleTarget, singleSource).
func (m *Matcher) MatchAll(ctx context.Context, singleSource, singleTarget bool) (*match.MatchMap, error) {
	if m.Geometry == nil && m.Attribute == nil {
		return nil, eris.Wrap(matcher.ErrConfig, "no geometry or attribute matcher configured")
	}

	var mm *match.MatchMap
	var err error
	if m.Geometry != nil {
		mm, err = m.GeometryMatching(ctx, singleTarget)
		if err != nil {
			return nil, err
		}
	}
	if m.Attribute != nil {
		mm, err = m.AttributeMatching(ctx, mm)
		if err != nil {
			return nil, err
		}
	}

	out := mm.Filter(singleTarget, singleSource)
	zap.L().Info("matching complete",
		zap.Int("sources", len(m.Source.Objects)),
		zap.Int("targets", len(m.Target.Objects)),
		zap.Int("candidates", mm.Len()),
		zap.Int("matches", out.Len()),
	)
	return out, nil
}

// GeometryMatching scores every source object against the targets found in
// its envelope widened by the matcher max distance. Scoring runs in
// parallel; results are added in source order.
func (m *Matcher) GeometryMatching(ctx context.Context, singleTarget bool) (*match.MatchMap, error) {
	if m.Geometry == nil {
		return nil, eris.Wrap(matcher.ErrConfig, "no geometry matcher configured")
	}
	index := m.Index()
	results := make([][]match.Match, len(m.Source.Objects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers())
	for i, src := range m.Source.Objects {
		i, src := i, src
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.scoreSource(index, src, singleTarget)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	mm := match.NewMatchMap()
	for _, ms := range results {
		for _, x := range ms {
			mm.Add(x)
		}
	}
	zap.L().Debug("geometry matching",
		zap.String("matcher", m.Geometry.Name()),
		zap.Int("candidates", mm.Len()),
	)
	return mm, nil
}

func (m *Matcher) searchDistance() float64 {
	p := m.Geometry.MaxDistance()
	if !p.Applicable {
		return 0
	}
	return p.Value
}

func (m *Matcher) scoreSource(index *Index, src *feature.Object, singleTarget bool) []match.Match {
	if src.Geometry == nil {
		return nil
	}
	maxDistance := m.searchDistance()
	var out []match.Match
	var candidates []*feature.Object
	for _, c := range index.Query(geometry.Expand(src.Geometry.Bound(), maxDistance)) {
		if m.sameSet() && c.ID == src.ID {
			continue
		}
		candidates = append(candidates, c)
		if s := m.Geometry.Score(src, c); s > 0 {
			out = append(out, match.New(src, c, s))
		}
	}

	if !singleTarget && len(candidates) > 1 && len(out) != len(candidates) {
		out = append(out, m.recoverManyToMany(src, candidates, maxDistance)...)
	}
	return out
}

// recoverManyToMany tests the source against the union of its candidates.
// When the union matches, each candidate covered well enough by the buffered
// source becomes a match scored from that coverage.
func (m *Matcher) recoverManyToMany(src *feature.Object, candidates []*feature.Object, maxDistance float64) []match.Match {
	if m.Geometry.MaxDistance().Unbounded() {
		return nil
	}
	union := make(orb.Collection, 0, len(candidates))
	for _, c := range candidates {
		union = append(union, c.Geometry)
	}
	if m.Geometry.ScoreGeometry(src.Geometry, union) <= 0 {
		return nil
	}

	bufSrc := geometry.Buffer(src.Geometry, maxDistance)
	areaSrc := geometry.RegionArea(bufSrc)
	var out []match.Match
	for _, c := range candidates {
		bufCand := geometry.Buffer(c.Geometry, maxDistance)
		inter := geometry.IntersectionArea(bufSrc, bufCand)
		areaCand := geometry.RegionArea(bufCand)
		if inter <= 0 || areaSrc <= 0 || areaCand <= 0 {
			continue
		}
		r1, r2 := inter/areaSrc, inter/areaCand
		if r1 < minCoverage && r2 < minCoverage {
			continue
		}
		if r2 < minTargetCoverage {
			continue
		}
		if s := 2*r2 - 1; s > 0 {
			out = append(out, match.New(src, c, s))
		}
	}
	return out
}

// AttributeMatching joins on the attribute matcher. With a nil map the join
// runs over the attribute index alone; otherwise each existing match is
// multiplied by its attribute score and zero-score matches are removed.
func (m *Matcher) AttributeMatching(ctx context.Context, mm *match.MatchMap) (*match.MatchMap, error) {
	if m.Attribute == nil {
		return nil, eris.Wrap(matcher.ErrConfig, "no attribute matcher configured")
	}
	if mm != nil {
		return m.rescore(ctx, mm)
	}

	index := m.Attribute.BuildIndex(m.Target.Objects)
	scored := m.Attribute.MaxDistance().Applicable
	rule := m.Attribute.SourceRule()
	out := match.NewMatchMap()
	for _, src := range m.Source.Objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, ok := src.String(m.Attribute.SourceAttribute())
		if !ok {
			continue
		}
		for _, c := range index.Query(rule(v)) {
			if m.sameSet() && c.ID == src.ID {
				continue
			}
			s := 1.0
			if scored {
				s = m.Attribute.Score(src, c)
			}
			if s > 0 {
				out.Add(match.New(src, c, s))
			}
		}
	}
	zap.L().Debug("attribute matching",
		zap.String("matcher", m.Attribute.Name()),
		zap.Int("indexed", index.Len()),
		zap.Int("candidates", out.Len()),
	)
	return out, nil
}

func (m *Matcher) rescore(ctx context.Context, mm *match.MatchMap) (*match.MatchMap, error) {
	removed := 0
	for _, x := range mm.All() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := m.Attribute.Score(x.Source, x.Target)
		if s <= 0 {
			mm.Remove(x)
			removed++
			continue
		}
		mm.Combine(x.SourceID(), x.TargetID(), s)
	}
	zap.L().Debug("attribute rescoring",
		zap.String("matcher", m.Attribute.Name()),
		zap.Int("kept", mm.Len()),
		zap.Int("removed", removed),
	)
	return mm, nil
}
