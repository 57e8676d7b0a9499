// Package matcher provides the similarity measures used to propose matches:
// geometric matchers comparing shapes and positions, and string matchers
// comparing attribute values. Matchers are constructed by name through a
// registry.
package matcher

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/kwv/geoconflate/feature"
)

// ErrConfig marks configuration errors: unknown matcher or rule names,
// malformed rule files, missing attributes.
var ErrConfig = eris.New("configuration error")

// Param is an optional tunable. Applicable is false when the matcher has no
// such parameter; an applicable Value of +Inf means no limit.
type Param struct {
	Value      float64
	Applicable bool
}

// NotApplicable is the Param of matchers without the tunable
var NotApplicable = Param{}

// Limit builds an applicable Param
func Limit(v float64) Param {
	return Param{Value: v, Applicable: true}
}

// Unbounded reports whether the param is applicable and infinite
func (p Param) Unbounded() bool {
	return p.Applicable && math.IsInf(p.Value, 1)
}

// Matcher scores a (source, target) pair in [0, 1]. Scores need not be
// symmetric.
type Matcher interface {
	Name() string
	Score(source, target *feature.Object) float64
	MaxDistance() Param
	MinOverlap() Param
}

// GeometryMatcher compares geometries
type GeometryMatcher interface {
	Matcher
	ScoreGeometry(source, target orb.Geometry) float64
}

// StringMatcher compares one attribute of the source with one attribute of
// the target after applying the optional rules
type StringMatcher interface {
	Matcher
	ScoreStrings(source, target string) float64
	SourceAttribute() string
	TargetAttribute() string
	SourceRule() Rule
	TargetRule() Rule
	BuildIndex(targets []*feature.Object) AttributeIndex
}

// Options configures a matcher at construction. Nil tunables keep the
// matcher default.
type Options struct {
	MaxDistance     *float64
	MinOverlap      *float64
	SourceAttribute string
	TargetAttribute string
	SourceRule      Rule
	TargetRule      Rule
}

func (o Options) maxDistance(def float64) float64 {
	if o.MaxDistance != nil {
		return *o.MaxDistance
	}
	return def
}

func (o Options) minOverlap(def float64) float64 {
	if o.MinOverlap != nil {
		return *o.MinOverlap
	}
	return def
}

// Constructor builds a matcher from options
type Constructor func(Options) (Matcher, error)

var registry = map[string]Constructor{}

// Register adds a constructor under a name, replacing any previous one
func Register(name string, c Constructor) {
	registry[name] = c
}

// Names lists registered matcher names in sorted order
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup constructs the matcher registered under name
func Lookup(name string, opts Options) (Matcher, error) {
	c, ok := registry[name]
	if !ok {
		return nil, eris.Wrapf(ErrConfig, "unknown matcher %q", name)
	}
	return c(opts)
}

// LookupGeometry constructs a geometry matcher by name
func LookupGeometry(name string, opts Options) (GeometryMatcher, error) {
	m, err := Lookup(name, opts)
	if err != nil {
		return nil, err
	}
	gm, ok := m.(GeometryMatcher)
	if !ok {
		return nil, eris.Wrapf(ErrConfig, "matcher %q does not compare geometries", name)
	}
	return gm, nil
}

// LookupString constructs a string matcher by name
func LookupString(name string, opts Options) (StringMatcher, error) {
	m, err := Lookup(name, opts)
	if err != nil {
		return nil, err
	}
	sm, ok := m.(StringMatcher)
	if !ok {
		return nil, eris.Wrapf(ErrConfig, "matcher %q does not compare attributes", name)
	}
	return sm, nil
}

// clamp01 bounds a score to [0, 1]; NaN becomes 0
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// distanceScore normalizes a distance as 1 - d/max, 0 beyond max
func distanceScore(d, max float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 1) {
		return 0
	}
	if math.IsInf(max, 1) {
		return 1
	}
	if d > max {
		return 0
	}
	if max <= 0 {
		if d == 0 {
			return 1
		}
		return 0
	}
	return clamp01(1 - d/max)
}

// overlapScore rescales a percentage against the minimum overlap
func overlapScore(percent, minOverlap float64) float64 {
	if minOverlap >= 100 {
		if percent >= 100 {
			return 1
		}
		return 0
	}
	return clamp01((percent - minOverlap) / (100 - minOverlap))
}
