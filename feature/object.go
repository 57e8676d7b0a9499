package feature

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
)

// AttributeType is the declared type of a named attribute
type AttributeType int

const (
	TypeString AttributeType = iota
	TypeInteger
	TypeFloat
	TypeDate
	TypeGeometry
)

func (t AttributeType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	case TypeGeometry:
		return "geometry"
	}
	return "unknown"
}

// Field describes one attribute column of a Set
type Field struct {
	Name string
	Type AttributeType
}

// Object is a spatial object: an id unique within its set, a geometry and
// typed attributes. Attribute values are string, int64, float64, time.Time or
// orb.Geometry; a missing key or nil value is a null.
type Object struct {
	ID       int
	Geometry orb.Geometry
	// Z holds per-vertex elevations in traversal order, nil for 2D data.
	Z     []float64
	Attrs map[string]interface{}
}

// NewObject creates an Object with an empty attribute map
func NewObject(id int, g orb.Geometry) *Object {
	return &Object{
		ID:       id,
		Geometry: g,
		Attrs:    make(map[string]interface{}),
	}
}

// Attribute returns the raw value of the named attribute, nil when absent
func (o *Object) Attribute(name string) interface{} {
	if o == nil || o.Attrs == nil {
		return nil
	}
	return o.Attrs[name]
}

// String returns the attribute formatted as a string.
// The bool is false for nulls.
func (o *Object) String(name string) (string, bool) {
	return FormatValue(o.Attribute(name))
}

// FormatValue formats an attribute value; dates use RFC 3339.
// The bool is false for nil.
func FormatValue(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	case int:
		return strconv.Itoa(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case time.Time:
		return val.Format(time.RFC3339), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return fmt.Sprint(v), true
}

// Clone returns a copy of the object with its own attribute map.
// The geometry is shared: objects are never mutated in place.
func (o *Object) Clone() *Object {
	c := &Object{
		ID:       o.ID,
		Geometry: o.Geometry,
		Z:        o.Z,
		Attrs:    make(map[string]interface{}, len(o.Attrs)),
	}
	for k, v := range o.Attrs {
		c.Attrs[k] = v
	}
	return c
}

// Set is an ordered, read-only collection of objects loaded from one source
type Set struct {
	Name    string
	Schema  []Field
	Objects []*Object
	byID    map[int]*Object
}

// NewSet builds a Set and its id lookup.
// Duplicate ids are rejected.
func NewSet(name string, schema []Field, objects []*Object) (*Set, error) {
	byID := make(map[int]*Object, len(objects))
	for _, o := range objects {
		if _, dup := byID[o.ID]; dup {
			return nil, eris.Errorf("set %s: duplicate object id %d", name, o.ID)
		}
		byID[o.ID] = o
	}
	return &Set{Name: name, Schema: schema, Objects: objects, byID: byID}, nil
}

// Get returns the object with the given id
func (s *Set) Get(id int) (*Object, bool) {
	o, ok := s.byID[id]
	return o, ok
}

// Len returns the number of objects
func (s *Set) Len() int {
	return len(s.Objects)
}

// Field returns the schema entry for a name
func (s *Set) Field(name string) (Field, bool) {
	for _, f := range s.Schema {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Bound returns the bounding box of every geometry in the set
func (s *Set) Bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, o := range s.Objects {
		if o.Geometry == nil {
			continue
		}
		if first {
			b = o.Geometry.Bound()
			first = false
			continue
		}
		b = b.Union(o.Geometry.Bound())
	}
	return b
}

// SortByID orders objects by ascending id
func SortByID(objs []*Object) {
	sort.Slice(objs, func(i, j int) bool { return objs[i].ID < objs[j].ID })
}
