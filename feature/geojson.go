package feature

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// dateLayouts are tried in order when inferring Date attributes from strings
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// LoadGeoJSON reads a FeatureCollection file into a Set. Objects get ids 1..n
// in file order; attribute types are inferred per property from every
// non-null value (integral numbers become Integer, dates in RFC 3339 or
// YYYY-MM-DD become Date).
func LoadGeoJSON(path, name string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: read %s", path)
	}
	return ParseGeoJSON(data, name)
}

// ParseGeoJSON decodes FeatureCollection bytes into a Set
func ParseGeoJSON(data []byte, name string) (*Set, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "feature: parse geojson")
	}

	elevations := extractElevations(data)

	schema := inferSchema(fc)
	objects := make([]*Object, 0, len(fc.Features))
	skipped := 0
	for i, f := range fc.Features {
		if f.Geometry == nil {
			skipped++
			continue
		}
		o := NewObject(i+1, f.Geometry)
		if i < len(elevations) {
			o.Z = elevations[i]
		}
		for _, field := range schema {
			if v := convertProperty(f.Properties[field.Name], field.Type); v != nil {
				o.Attrs[field.Name] = v
			}
		}
		objects = append(objects, o)
	}

	if skipped > 0 {
		zap.L().Debug("feature: skipped features without geometry",
			zap.String("set", name),
			zap.Int("skipped", skipped),
		)
	}

	return NewSet(name, schema, objects)
}

func inferSchema(fc *geojson.FeatureCollection) []Field {
	types := make(map[string]AttributeType)
	seen := make(map[string]bool)
	var names []string

	for _, f := range fc.Features {
		for k, v := range f.Properties {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
			if v == nil {
				continue
			}
			t := valueType(v)
			prev, ok := types[k]
			switch {
			case !ok:
				types[k] = t
			case prev == t:
			case prev == TypeInteger && t == TypeFloat, prev == TypeFloat && t == TypeInteger:
				types[k] = TypeFloat
			default:
				types[k] = TypeString
			}
		}
	}

	sort.Strings(names)
	schema := make([]Field, 0, len(names))
	for _, n := range names {
		t, ok := types[n]
		if !ok {
			t = TypeString
		}
		schema = append(schema, Field{Name: n, Type: t})
	}
	return schema
}

func valueType(v interface{}) AttributeType {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return TypeInteger
		}
		return TypeFloat
	case string:
		if _, ok := parseDate(val); ok {
			return TypeDate
		}
		return TypeString
	}
	return TypeString
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func convertProperty(v interface{}, t AttributeType) interface{} {
	if v == nil {
		return nil
	}
	switch t {
	case TypeInteger:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case TypeFloat:
		if f, ok := v.(float64); ok {
			return f
		}
	case TypeDate:
		if s, ok := v.(string); ok {
			if d, ok := parseDate(s); ok {
				return d
			}
		}
	}
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(val)
		return string(b)
	}
	o := &Object{Attrs: map[string]interface{}{"v": v}}
	s, _ := o.String("v")
	return strings.TrimSpace(s)
}

// extractElevations walks the raw coordinates of every feature and collects
// third ordinates. Features without any 3D position get a nil slice.
func extractElevations(data []byte) [][]float64 {
	var raw struct {
		Features []struct {
			Geometry *struct {
				Coordinates json.RawMessage `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	out := make([][]float64, len(raw.Features))
	for i, f := range raw.Features {
		if f.Geometry == nil || len(f.Geometry.Coordinates) == 0 {
			continue
		}
		var coords interface{}
		if err := json.Unmarshal(f.Geometry.Coordinates, &coords); err != nil {
			continue
		}
		var zs []float64
		has3D := false
		walkPositions(coords, func(pos []interface{}) {
			z := math.NaN()
			if len(pos) >= 3 {
				if v, ok := pos[2].(float64); ok {
					z = v
					has3D = true
				}
			}
			zs = append(zs, z)
		})
		if has3D {
			out[i] = zs
		}
	}
	return out
}

func walkPositions(v interface{}, fn func([]interface{})) {
	arr, ok := v.([]interface{})
	if !ok || len(arr) == 0 {
		return
	}
	if _, isNum := arr[0].(float64); isNum {
		fn(arr)
		return
	}
	for _, child := range arr {
		walkPositions(child, fn)
	}
}
