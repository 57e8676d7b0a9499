package aggregate

import (
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/geoconflate/feature"
)

func objects(values ...interface{}) []*feature.Object {
	out := make([]*feature.Object, len(values))
	for i, v := range values {
		o := feature.NewObject(i+1, nil)
		if v != nil {
			o.Attrs["v"] = v
		}
		out[i] = o
	}
	return out
}

// centuries holds one 1900-01-01 and 39 2000-01-01; the sum of their
// offsets overflows a time.Duration
func centuries() []interface{} {
	vs := []interface{}{time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)}
	for i := 0; i < 39; i++ {
		vs = append(vs, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	return vs
}

// 36524 days separate the two dates; the mean sits 39/40 of the way
var centuriesMean = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC).Add(36524 * 24 * time.Hour / 40 * 39)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregators(t *testing.T) {
	tests := []struct {
		name       string
		aggregator string
		countNulls bool
		values     []interface{}
		want       interface{}
	}{
		{"count skips nulls", "count", false, []interface{}{1, nil, "a"}, int64(2)},
		{"count with nulls", "count", true, []interface{}{1, nil, "a"}, int64(3)},
		{"count empty", "count", false, nil, int64(0)},

		{"sum integers", "sum", false, []interface{}{int64(2), 3, nil}, int64(5)},
		{"sum floats", "sum", false, []interface{}{1.5, int64(2)}, 3.5},
		{"sum empty", "sum", false, nil, int64(0)},

		{"mean integers truncates", "mean", false, []interface{}{int64(1), int64(2)}, int64(1)},
		{"mean floats", "mean", false, []interface{}{1.0, 2.0, nil}, 1.5},
		{"mean counts nulls", "mean", true, []interface{}{1.0, 2.0, nil}, 1.0},
		{"mean dates", "mean", false, []interface{}{day(1), day(3)}, day(2)},
		{"mean dates over centuries", "mean", false, centuries(), centuriesMean},
		{"mean strings", "mean", false, []interface{}{"a"}, nil},
		{"mean empty", "mean", false, nil, nil},

		{"max integers", "max", false, []interface{}{int64(3), nil, int64(7), int64(5)}, int64(7)},
		{"max mixed numbers", "max", false, []interface{}{int64(3), 4.5}, 4.5},
		{"max dates", "max", false, []interface{}{day(5), day(9), day(2)}, day(9)},
		{"max strings", "max", false, []interface{}{"b", "c", "a"}, "c"},
		{"max empty", "max", false, nil, nil},

		{"min floats", "min", false, []interface{}{2.5, -1.0, 0.0}, -1.0},
		{"min dates", "min", false, []interface{}{day(5), day(9), day(2)}, day(2)},
		{"min skips other kinds", "min", false, []interface{}{int64(5), "a", int64(2)}, int64(2)},
		{"min empty", "min", false, nil, nil},

		{"concatenate", "concatenate", false, []interface{}{"b", nil, "a", "b"}, "b|a|b"},
		{"concatenate numbers", "concatenate", false, []interface{}{int64(1), 2.5}, "1|2.5"},
		{"concatenate empty", "concatenate", false, nil, nil},
		{"concatenate unique", "concatenate-unique", false, []interface{}{"b", "a", "b"}, "a|b"},
		{"concatenate unique empty", "concatenate-unique", false, []interface{}{nil}, nil},

		{"most frequent", "most-frequent", false, []interface{}{"x", "y", "y", nil, nil, nil}, "y"},
		{"most frequent tie goes to first seen", "most-frequent", false, []interface{}{"b", "a", "b", "a"}, "b"},
		{"most frequent keeps type", "most-frequent", false, []interface{}{int64(4), int64(4), int64(1)}, int64(4)},
		{"most frequent empty", "most-frequent", false, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.aggregator, tt.countNulls)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Aggregate(objects(tt.values...), "v"))
		})
	}
}

func TestUnknownAggregator(t *testing.T) {
	_, err := New("median", false)
	assert.True(t, eris.Is(err, ErrConfig))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		"concatenate", "concatenate-unique", "count", "max", "mean", "min", "most-frequent", "sum",
	}, Names())
}
