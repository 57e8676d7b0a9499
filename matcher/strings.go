package matcher

import (
	"math"

	"github.com/hbollon/go-edlib"
	"github.com/rotisserie/eris"

	"github.com/kwv/geoconflate/feature"
)

// DefaultEditDistance is the default maximum edit distance
const DefaultEditDistance = 2.0

func init() {
	Register("string-equals", equalityConstructor("string-equals", Identity))
	Register("string-equals-ignore-case", equalityConstructor("string-equals-ignore-case", Fold))
	Register("string-equals-ignore-case-accent", equalityConstructor("string-equals-ignore-case-accent", func(s string) string {
		return Fold(StripAccents(s))
	}))
	Register("levenshtein", editConstructor("levenshtein", edlib.LevenshteinDistance, nil))
	// a transposition costs 2 under Levenshtein, so the BK-tree searches a
	// doubled radius and candidates are re-checked with the OSA distance
	Register("damerau-levenshtein", editConstructor("damerau-levenshtein", edlib.OSADamerauLevenshteinDistance, edlib.LevenshteinDistance))
}

type stringMatcher struct {
	name       string
	sourceAttr string
	targetAttr string
	sourceRule Rule
	targetRule Rule
	maxDist    Param

	// equality matchers compare keys
	key func(string) string
	// edit-distance matchers
	distance func(a, b string) int
	metric   func(a, b string) int
}

func newStringMatcher(name string, o Options) (*stringMatcher, error) {
	if o.SourceAttribute == "" {
		return nil, eris.Wrapf(ErrConfig, "matcher %q needs a source attribute", name)
	}
	m := &stringMatcher{
		name:       name,
		sourceAttr: o.SourceAttribute,
		targetAttr: o.TargetAttribute,
		sourceRule: o.SourceRule,
		targetRule: o.TargetRule,
	}
	if m.targetAttr == "" {
		m.targetAttr = m.sourceAttr
	}
	if m.sourceRule == nil {
		m.sourceRule = Identity
	}
	if m.targetRule == nil {
		m.targetRule = Identity
	}
	return m, nil
}

func equalityConstructor(name string, key func(string) string) Constructor {
	return func(o Options) (Matcher, error) {
		m, err := newStringMatcher(name, o)
		if err != nil {
			return nil, err
		}
		m.key = key
		m.maxDist = NotApplicable
		return m, nil
	}
}

func editConstructor(name string, distance, metric func(a, b string) int) Constructor {
	return func(o Options) (Matcher, error) {
		m, err := newStringMatcher(name, o)
		if err != nil {
			return nil, err
		}
		max := o.maxDistance(DefaultEditDistance)
		if max < 0 || math.IsNaN(max) {
			return nil, eris.Wrapf(ErrConfig, "matcher %q: negative max distance %v", name, max)
		}
		m.distance = distance
		m.metric = metric
		m.maxDist = Limit(max)
		return m, nil
	}
}

func (m *stringMatcher) Name() string            { return m.name }
func (m *stringMatcher) MaxDistance() Param      { return m.maxDist }
func (m *stringMatcher) MinOverlap() Param       { return NotApplicable }
func (m *stringMatcher) SourceAttribute() string { return m.sourceAttr }
func (m *stringMatcher) TargetAttribute() string { return m.targetAttr }
func (m *stringMatcher) SourceRule() Rule        { return m.sourceRule }
func (m *stringMatcher) TargetRule() Rule        { return m.targetRule }

// ScoreStrings compares two values that already went through the rules
func (m *stringMatcher) ScoreStrings(a, b string) float64 {
	if m.key != nil {
		if m.key(a) == m.key(b) {
			return 1
		}
		return 0
	}
	return distanceScore(float64(m.distance(a, b)), m.maxDist.Value)
}

// Score compares the source attribute of a with the target attribute of b.
// Nulls score 0.
func (m *stringMatcher) Score(a, b *feature.Object) float64 {
	va, ok := a.String(m.sourceAttr)
	if !ok {
		return 0
	}
	vb, ok := b.String(m.targetAttr)
	if !ok {
		return 0
	}
	return m.ScoreStrings(m.sourceRule(va), m.targetRule(vb))
}

// BuildIndex indexes the target attribute of targets after the target rule.
// Null values are not indexed.
func (m *stringMatcher) BuildIndex(targets []*feature.Object) AttributeIndex {
	if m.key != nil {
		x := newExactIndex(m.key)
		for _, o := range targets {
			if v, ok := o.String(m.targetAttr); ok {
				x.add(m.targetRule(v), o)
			}
		}
		return x
	}

	metric := m.metric
	radius := -1
	if !m.maxDist.Unbounded() {
		radius = int(math.Floor(m.maxDist.Value))
		if metric != nil {
			radius *= 2
		}
	}
	if metric == nil {
		metric = m.distance
	}
	x := &editIndex{
		tree:   NewBKTree(metric),
		radius: radius,
		accept: func(q, v string) bool {
			return float64(m.distance(q, v)) <= m.maxDist.Value
		},
	}
	for _, o := range targets {
		if v, ok := o.String(m.targetAttr); ok {
			x.tree.Insert(m.targetRule(v), o)
			x.all = append(x.all, o)
		}
	}
	return x
}
