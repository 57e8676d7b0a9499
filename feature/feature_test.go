package feature

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCollection = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [1, 2, 30]},
     "properties": {"name": "Rue de la Paix", "lanes": 2, "width": 7.5, "built": "1998-05-01"}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[0, 0], [10, 0]]},
     "properties": {"name": "Avenue Foch", "lanes": null, "width": 12, "built": "2001-01-01"}},
    {"type": "Feature", "geometry": null, "properties": {"name": "orphan"}}
  ]
}`

func TestParseGeoJSON(t *testing.T) {
	set, err := ParseGeoJSON([]byte(sampleCollection), "roads")
	require.NoError(t, err)

	assert.Equal(t, "roads", set.Name)
	assert.Equal(t, 2, set.Len(), "feature without geometry is skipped")

	t.Run("schema inference", func(t *testing.T) {
		lanes, ok := set.Field("lanes")
		require.True(t, ok)
		assert.Equal(t, TypeInteger, lanes.Type)

		width, ok := set.Field("width")
		require.True(t, ok)
		assert.Equal(t, TypeFloat, width.Type, "7.5 and 12 widen to float")

		built, ok := set.Field("built")
		require.True(t, ok)
		assert.Equal(t, TypeDate, built.Type)

		name, ok := set.Field("name")
		require.True(t, ok)
		assert.Equal(t, TypeString, name.Type)
	})

	t.Run("typed values", func(t *testing.T) {
		first, ok := set.Get(1)
		require.True(t, ok)
		assert.Equal(t, int64(2), first.Attribute("lanes"))
		assert.Equal(t, 7.5, first.Attribute("width"))
		assert.Equal(t, time.Date(1998, 5, 1, 0, 0, 0, 0, time.UTC), first.Attribute("built"))
		assert.Equal(t, orb.Point{1, 2}, first.Geometry)
		assert.Equal(t, []float64{30}, first.Z)

		second, ok := set.Get(2)
		require.True(t, ok)
		assert.Nil(t, second.Attribute("lanes"), "null stays null")
		assert.Equal(t, 12.0, second.Attribute("width"))
		assert.Nil(t, second.Z, "2D geometry has no elevations")
	})
}

func TestObjectString(t *testing.T) {
	o := NewObject(1, orb.Point{0, 0})
	o.Attrs["s"] = "abc"
	o.Attrs["i"] = int64(42)
	o.Attrs["f"] = 1.25

	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"s", "abc", true},
		{"i", "42", true},
		{"f", "1.25", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := o.String(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestObjectCloneIsIndependent(t *testing.T) {
	o := NewObject(7, orb.Point{1, 1})
	o.Attrs["name"] = "a"

	c := o.Clone()
	c.Attrs["name"] = "b"

	assert.Equal(t, "a", o.Attrs["name"])
	assert.Equal(t, 7, c.ID)
}

func TestNewSetRejectsDuplicateIDs(t *testing.T) {
	_, err := NewSet("dup", nil, []*Object{NewObject(1, orb.Point{}), NewObject(1, orb.Point{})})
	assert.Error(t, err)
}

func TestSetBound(t *testing.T) {
	set, err := NewSet("s", nil, []*Object{
		NewObject(1, orb.Point{0, 0}),
		NewObject(2, orb.LineString{{5, 5}, {10, -2}}),
	})
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, -2}, Max: orb.Point{10, 5}}, set.Bound())
}

func TestLoadShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME", 20),
		shp.NumberField("RANK", 6),
	}))
	w.Write(&shp.Point{X: 3, Y: 4})
	require.NoError(t, w.WriteAttribute(0, 0, "Gare"))
	require.NoError(t, w.WriteAttribute(0, 1, 3))
	w.Write(&shp.Point{X: -1, Y: 8})
	require.NoError(t, w.WriteAttribute(1, 0, "Mairie"))
	w.Close()

	set, err := LoadShapefile(path, "stops")
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	first, ok := set.Get(1)
	require.True(t, ok)
	assert.Equal(t, orb.Point{3, 4}, first.Geometry)
	assert.Equal(t, "Gare", first.Attribute("NAME"))
	assert.Equal(t, int64(3), first.Attribute("RANK"))

	second, ok := set.Get(2)
	require.True(t, ok)
	assert.Nil(t, second.Attribute("RANK"), "empty numeric is null")
}
