// Package aggregate reduces one attribute over the source objects matched to
// a single target.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kwv/geoconflate/feature"
)

// ErrConfig is returned for unknown aggregator names
var ErrConfig = eris.New("invalid aggregator")

// Separator joins concatenated values
const Separator = "|"

type reducer func(values []interface{}, nulls int, countNulls bool) interface{}

// Aggregator reduces the values of one attribute. Nulls are skipped unless
// CountNulls is set, in which case they count toward count and mean.
type Aggregator struct {
	Name       string
	CountNulls bool
	reduce     reducer
}

var reducers = map[string]reducer{
	"count":              count,
	"sum":                sum,
	"mean":               mean,
	"max":                func(vs []interface{}, _ int, _ bool) interface{} { return extreme(vs, 1) },
	"min":                func(vs []interface{}, _ int, _ bool) interface{} { return extreme(vs, -1) },
	"concatenate":        concatenate,
	"concatenate-unique": concatenateUnique,
	"most-frequent":      mostFrequent,
}

// New returns the aggregator registered under name
func New(name string, countNulls bool) (Aggregator, error) {
	r, ok := reducers[name]
	if !ok {
		return Aggregator{}, eris.Wrapf(ErrConfig, "unknown aggregator %q", name)
	}
	return Aggregator{Name: name, CountNulls: countNulls, reduce: r}, nil
}

// Names lists the registered aggregators
func Names() []string {
	out := make([]string, 0, len(reducers))
	for k := range reducers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Aggregate reduces attribute over objs
func (a Aggregator) Aggregate(objs []*feature.Object, attribute string) interface{} {
	values := make([]interface{}, 0, len(objs))
	nulls := 0
	for _, o := range objs {
		v := normalize(o.Attribute(attribute))
		if v == nil {
			nulls++
			continue
		}
		values = append(values, v)
	}
	return a.reduce(values, nulls, a.CountNulls)
}

// normalize maps attribute values onto int64, float64, time.Time and string
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case int64, float64, time.Time, string:
		return x
	}
	s, _ := feature.FormatValue(v)
	return s
}

func format(v interface{}) string {
	s, _ := feature.FormatValue(v)
	return s
}

type kind int

const (
	kindString kind = iota
	kindInt
	kindFloat
	kindDate
)

func kindOf(v interface{}) kind {
	switch v.(type) {
	case int64:
		return kindInt
	case float64:
		return kindFloat
	case time.Time:
		return kindDate
	}
	return kindString
}

func numeric(k kind) bool { return k == kindInt || k == kindFloat }

func count(vs []interface{}, nulls int, countNulls bool) interface{} {
	n := len(vs)
	if countNulls {
		n += nulls
	}
	return int64(n)
}

// sum adds the numeric values. The result stays int64 until a float is seen.
func sum(vs []interface{}, _ int, _ bool) interface{} {
	var i int64
	var f float64
	float := false
	for _, v := range vs {
		switch x := v.(type) {
		case int64:
			i += x
		case float64:
			f += x
			float = true
		}
	}
	if float {
		return f + float64(i)
	}
	return i
}

// mean averages numbers or dates, following the kind of the first value.
// Integers give a truncated int64 unless a float is present.
func mean(vs []interface{}, nulls int, countNulls bool) interface{} {
	if len(vs) == 0 {
		return nil
	}
	k := kindOf(vs[0])
	if k == kindString {
		return nil
	}

	var n int64
	var ints int64
	var floats float64
	var offset float64
	var base time.Time
	hasFloat := false
	if k == kindDate {
		base = vs[0].(time.Time)
	}
	for _, v := range vs {
		switch x := v.(type) {
		case int64:
			if !numeric(k) {
				continue
			}
			ints += x
		case float64:
			if !numeric(k) {
				continue
			}
			floats += x
			hasFloat = true
		case time.Time:
			if k != kindDate {
				continue
			}
			offset += float64(x.Unix()-base.Unix()) + float64(x.Nanosecond()-base.Nanosecond())/1e9
		default:
			continue
		}
		n++
	}
	if countNulls {
		n += int64(nulls)
	}

	switch {
	case k == kindDate:
		return dateMean(base, offset/float64(n))
	case hasFloat:
		return (floats + float64(ints)) / float64(n)
	}
	return ints / n
}

// dateMean returns base moved by offset seconds. Offsets are kept in float
// seconds since a time.Duration spans only about 292 years.
func dateMean(base time.Time, offset float64) time.Time {
	whole := math.Floor(offset)
	nanos := math.Round((offset - whole) * 1e9)
	return time.Unix(base.Unix()+int64(whole), int64(base.Nanosecond())+int64(nanos)).In(base.Location())
}

// compare orders two values of comparable kinds; int64 and float64 compare
// with each other
func compare(a, b interface{}) (int, bool) {
	ka, kb := kindOf(a), kindOf(b)
	switch {
	case numeric(ka) && numeric(kb):
		fa, fb := number(a), number(b)
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	case ka != kb:
		return 0, false
	case ka == kindDate:
		return a.(time.Time).Compare(b.(time.Time)), true
	}
	return strings.Compare(a.(string), b.(string)), true
}

func number(v interface{}) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// extreme returns the largest (sign 1) or smallest (sign -1) value among
// those comparable with the first one
func extreme(vs []interface{}, sign int) interface{} {
	var best interface{}
	for _, v := range vs {
		if best == nil {
			best = v
			continue
		}
		if c, ok := compare(v, best); ok && c*sign > 0 {
			best = v
		}
	}
	return best
}

func concatenate(vs []interface{}, _ int, _ bool) interface{} {
	if len(vs) == 0 {
		return nil
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = format(v)
	}
	return strings.Join(parts, Separator)
}

func concatenateUnique(vs []interface{}, _ int, _ bool) interface{} {
	if len(vs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(vs))
	var parts []string
	for _, v := range vs {
		s := format(v)
		if !seen[s] {
			seen[s] = true
			parts = append(parts, s)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, Separator)
}

// mostFrequent returns the value seen most often; ties go to the value
// seen first
func mostFrequent(vs []interface{}, _ int, _ bool) interface{} {
	if len(vs) == 0 {
		return nil
	}
	counts := make(map[string]int, len(vs))
	first := make(map[string]interface{}, len(vs))
	var keys []string
	for _, v := range vs {
		s := format(v)
		if _, ok := first[s]; !ok {
			first[s] = v
			keys = append(keys, s)
		}
		counts[s]++
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return counts[keys[i]] > counts[keys[j]]
	})
	return first[keys[0]]
}
