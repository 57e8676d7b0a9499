package output

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/match"
	"github.com/kwv/geoconflate/result"
	"github.com/kwv/geoconflate/validate"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

type fixture struct {
	source, target *feature.Set
	report         *validate.Report
	result         *result.Result
}

// newFixture has two valid matches (one with coincident ends) and one
// invalid match
func newFixture(t *testing.T) fixture {
	t.Helper()
	named := func(id int, g orb.Geometry, name string) *feature.Object {
		o := feature.NewObject(id, g)
		o.Attrs["name"] = name
		return o
	}
	source, err := feature.NewSet("source", nil, []*feature.Object{
		named(1, square(0, 0, 4), "hall"),
		named(2, orb.Point{10, 10}, "well"),
		named(3, orb.Point{20, 0}, "gate"),
	})
	require.NoError(t, err)
	target, err := feature.NewSet("target", nil, []*feature.Object{
		feature.NewObject(11, square(1, 0, 4)),
		feature.NewObject(12, orb.Point{10, 10}),
	})
	require.NoError(t, err)

	get := func(s *feature.Set, id int) *feature.Object {
		o, ok := s.Get(id)
		require.True(t, ok)
		return o
	}
	report := &validate.Report{
		Outcomes: []validate.Outcome{
			{Match: match.New(get(source, 1), get(target, 11), 0.75), Status: validate.Valid,
				Record: validate.ConfidenceRecord{Context: 1, Object: 0.6, Confidence: 0.8, Radius: 12, Neighbors: 2}},
			{Match: match.New(get(source, 2), get(target, 12), 1), Status: validate.Valid,
				Record: validate.ConfidenceRecord{Context: 1, Object: 1, Confidence: 1, Radius: 12, Neighbors: 2}},
			{Match: match.New(get(source, 3), get(target, 12), 0.5), Status: validate.Invalid,
				Record: validate.ConfidenceRecord{Context: 0, Object: 0, Confidence: 0, Radius: 20, Neighbors: 2}},
		},
		Converged:  true,
		Backtracks: 1,
		Clusters:   1,
	}
	res := result.Assemble(report, source, target, result.Options{Links: true})
	return fixture{source: source, target: target, report: report, result: res}
}
