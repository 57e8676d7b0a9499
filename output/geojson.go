// Package output writes assembled results: GeoJSON files, a sqlite run
// store, MQTT publication and SVG/PNG rendering.
package output

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/feature"
	"github.com/kwv/geoconflate/result"
)

// FeatureCollection converts objects to GeoJSON. Dates become RFC 3339
// strings; objects without geometry are skipped.
func FeatureCollection(objs []*feature.Object) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, o := range objs {
		if o.Geometry == nil {
			zap.L().Debug("skipping object without geometry", zap.Int("id", o.ID))
			continue
		}
		f := geojson.NewFeature(o.Geometry)
		f.ID = o.ID
		for k, v := range o.Attrs {
			if t, ok := v.(time.Time); ok {
				v = t.Format(time.RFC3339)
			}
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes every collection of res to dir as <name>.geojson and
// returns the written paths in name order
func WriteGeoJSON(dir string, res *result.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "output: create %s", dir)
	}
	collections := res.Collections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		data, err := FeatureCollection(collections[name]).MarshalJSON()
		if err != nil {
			return paths, eris.Wrapf(err, "output: encode %s", name)
		}
		path := filepath.Join(dir, name+".geojson")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, eris.Wrapf(err, "output: write %s", path)
		}
		zap.L().Info("wrote collection",
			zap.String("name", name),
			zap.String("path", path),
			zap.Int("features", len(collections[name])),
		)
		paths = append(paths, path)
	}
	return paths, nil
}
