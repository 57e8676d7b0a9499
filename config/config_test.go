package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kwv/geoconflate/result"
	"github.com/kwv/geoconflate/validate"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Matching.SingleTarget)
	assert.False(t, cfg.Matching.SingleSource)
	assert.Nil(t, cfg.Matching.MaxDistance)
	assert.True(t, cfg.Validation.Enabled)
	assert.Equal(t, validate.DefaultOptions(), cfg.Validation.Options())
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.Links)
	assert.Equal(t, 256, cfg.Output.ThumbnailSize)
	assert.Equal(t, "geoconflate", cfg.MQTT.Prefix)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.Store.Path)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
log:
  level: debug
  format: json
input:
  source: a.geojson
  target: b.shp
matching:
  geometry: min-distance
  max_distance: 2.5
  single_source: true
validation:
  threshold: 0.7
  estimator: sequence
output:
  aggregations:
    - attribute: pop
      function: sum
store:
  path: runs.db
  srid: 4326
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "a.geojson", cfg.Input.Source)
	assert.Equal(t, "b.shp", cfg.Input.Target)
	assert.Equal(t, "min-distance", cfg.Matching.Geometry)
	require.NotNil(t, cfg.Matching.MaxDistance)
	assert.Equal(t, 2.5, *cfg.Matching.MaxDistance)
	assert.True(t, cfg.Matching.SingleSource)
	assert.Equal(t, 0.7, cfg.Validation.Threshold)
	assert.Equal(t, validate.EstimatorSequence, cfg.Validation.Estimator)
	require.Len(t, cfg.Output.Aggregations, 1)
	assert.Equal(t, "sum", cfg.Output.Aggregations[0].Function)
	assert.Equal(t, "runs.db", cfg.Store.Path)
	assert.Equal(t, 4326, cfg.Store.SRID)
	// Defaults still apply for unset values
	assert.Equal(t, validate.DefaultOptions().MinNeighbors, cfg.Validation.MinNeighbors)

	assert.NoError(t, cfg.Validate())
	assert.NoError(t, cfg.ValidateInput())
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	chdir(t, t.TempDir())
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9999\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("validation:\n  threshold: 0.7\n"), 0644))

	t.Setenv("GEOCONFLATE_VALIDATION_THRESHOLD", "0.6")
	t.Setenv("GEOCONFLATE_INPUT_SOURCE", "env.geojson")
	t.Setenv("GEOCONFLATE_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.6, cfg.Validation.Threshold)
	assert.Equal(t, "env.geojson", cfg.Input.Source)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	chdir(t, t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"workers", func(c *Config) { c.Matching.Workers = -1 }},
		{"threshold", func(c *Config) { c.Validation.Threshold = 2 }},
		{"estimator", func(c *Config) { c.Validation.Estimator = "tarot" }},
		{"link mode", func(c *Config) { c.Output.LinkMode = "diagonal" }},
		{"aggregation function", func(c *Config) {
			c.Output.Aggregations = []AggregationConfig{{Attribute: "pop", Function: "median"}}
		}},
		{"aggregation attribute", func(c *Config) {
			c.Output.Aggregations = []AggregationConfig{{Function: "sum"}}
		}},
		{"thumbnail", func(c *Config) { c.Output.ThumbnailSize = -1 }},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"srid", func(c *Config) { c.Store.SRID = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled validation is not checked", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Validation.Enabled = false
		cfg.Validation.Threshold = 2
		assert.NoError(t, cfg.Validate())
	})
}

func TestValidateInput(t *testing.T) {
	cfg := validConfig(t)
	err := cfg.ValidateInput()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConfig))

	cfg.Input.Source, cfg.Input.Target = "a", "b"
	assert.Error(t, cfg.ValidateInput(), "a matcher is required")

	cfg.Matching.Attribute = "string-equals"
	assert.NoError(t, cfg.ValidateInput())
}

func TestResultOptions(t *testing.T) {
	out := OutputConfig{Links: true, LinkMode: "auto"}

	opts, err := out.ResultOptions("min-distance")
	require.NoError(t, err)
	assert.Equal(t, result.LinkClosest, opts.LinkMode)

	opts, err = out.ResultOptions("overlaps")
	require.NoError(t, err)
	assert.Equal(t, result.LinkInterior, opts.LinkMode)

	out.LinkMode = "closest"
	out.Aggregations = []AggregationConfig{{Attribute: "name", Function: "concatenate"}}
	opts, err = out.ResultOptions("")
	require.NoError(t, err)
	assert.Equal(t, result.LinkClosest, opts.LinkMode)
	assert.True(t, opts.CopyTargets, "aggregations imply a target copy")
	require.Len(t, opts.Aggregations, 1)
	assert.Equal(t, "concatenate", opts.Aggregations[0].Aggregator.Name)
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}
