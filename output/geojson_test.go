package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/geoconflate/feature"
)

func TestFeatureCollection(t *testing.T) {
	dated := feature.NewObject(1, orb.Point{1, 2})
	dated.Attrs["built"] = time.Date(2020, 5, 17, 0, 0, 0, 0, time.UTC)
	dated.Attrs["name"] = "mill"

	fc := FeatureCollection([]*feature.Object{dated, feature.NewObject(2, nil)})
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, 1, f.ID)
	assert.Equal(t, orb.Point{1, 2}, f.Geometry)
	assert.Equal(t, "2020-05-17T00:00:00Z", f.Properties["built"])
	assert.Equal(t, "mill", f.Properties["name"])
}

func TestWriteGeoJSON(t *testing.T) {
	fx := newFixture(t)
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteGeoJSON(dir, fx.result)
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{"invalid.geojson", "links.geojson", "new.geojson", "unmatched.geojson", "valid.geojson"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "valid.geojson"))
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "hall", fc.Features[0].Properties["name"])
	assert.Equal(t, float64(11), fc.Features[0].Properties["MATCH_TARGET"])

	data, err = os.ReadFile(filepath.Join(dir, "new.geojson"))
	require.NoError(t, err)
	fc, err = geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}
