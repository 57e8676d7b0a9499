package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kwv/geoconflate/aggregate"
	"github.com/kwv/geoconflate/result"
	"github.com/kwv/geoconflate/validate"
)

// ErrConfig marks invalid configuration values
var ErrConfig = eris.New("invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Matching   MatchingConfig   `yaml:"matching" mapstructure:"matching"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	MQTT       MQTTConfig       `yaml:"mqtt" mapstructure:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http" mapstructure:"http"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InputConfig names the two datasets. Files ending in .shp are read as
// shapefiles, anything else as GeoJSON.
type InputConfig struct {
	Source string `yaml:"source" mapstructure:"source"`
	Target string `yaml:"target" mapstructure:"target"`
}

// MatchingConfig selects and tunes the candidate matchers.
type MatchingConfig struct {
	Geometry        string   `yaml:"geometry" mapstructure:"geometry"`
	Attribute       string   `yaml:"attribute" mapstructure:"attribute"`
	MaxDistance     *float64 `yaml:"max_distance" mapstructure:"max_distance"`
	MinOverlap      *float64 `yaml:"min_overlap" mapstructure:"min_overlap"`
	SourceAttribute string   `yaml:"source_attribute" mapstructure:"source_attribute"`
	TargetAttribute string   `yaml:"target_attribute" mapstructure:"target_attribute"`
	SourceRule      string   `yaml:"source_rule" mapstructure:"source_rule"`
	TargetRule      string   `yaml:"target_rule" mapstructure:"target_rule"`
	RuleFile        string   `yaml:"rule_file" mapstructure:"rule_file"`
	SingleSource    bool     `yaml:"single_source" mapstructure:"single_source"`
	SingleTarget    bool     `yaml:"single_target" mapstructure:"single_target"`
	Workers         int      `yaml:"workers" mapstructure:"workers"`
}

// ValidationConfig tunes the validation engine.
type ValidationConfig struct {
	Enabled               bool    `yaml:"enabled" mapstructure:"enabled"`
	Threshold             float64 `yaml:"threshold" mapstructure:"threshold"`
	ContextWeight         float64 `yaml:"context_weight" mapstructure:"context_weight"`
	MinNeighbors          int     `yaml:"min_neighbors" mapstructure:"min_neighbors"`
	RadiusGrowth          float64 `yaml:"radius_growth" mapstructure:"radius_growth"`
	MinRadius             float64 `yaml:"min_radius" mapstructure:"min_radius"`
	MaxRadiusSteps        int     `yaml:"max_radius_steps" mapstructure:"max_radius_steps"`
	AngleTolerance        float64 `yaml:"angle_tolerance" mapstructure:"angle_tolerance"`
	Estimator             string  `yaml:"estimator" mapstructure:"estimator"`
	Similarity            string  `yaml:"similarity" mapstructure:"similarity"`
	LinearBuffer          float64 `yaml:"linear_buffer" mapstructure:"linear_buffer"`
	MaxBacktrack          int     `yaml:"max_backtrack" mapstructure:"max_backtrack"`
	DiscoverMissing       bool    `yaml:"discover_missing" mapstructure:"discover_missing"`
	MissingSearchDistance float64 `yaml:"missing_search_distance" mapstructure:"missing_search_distance"`
}

// AggregationConfig copies one source attribute onto matched targets.
type AggregationConfig struct {
	Attribute  string `yaml:"attribute" mapstructure:"attribute"`
	Function   string `yaml:"function" mapstructure:"function"`
	CountNulls bool   `yaml:"count_nulls" mapstructure:"count_nulls"`
}

// OutputConfig selects the written artifacts.
type OutputConfig struct {
	Dir           string              `yaml:"dir" mapstructure:"dir"`
	Links         bool                `yaml:"links" mapstructure:"links"`
	LinkMode      string              `yaml:"link_mode" mapstructure:"link_mode"`
	CopyTargets   bool                `yaml:"copy_targets" mapstructure:"copy_targets"`
	Aggregations  []AggregationConfig `yaml:"aggregations" mapstructure:"aggregations"`
	SVG           bool                `yaml:"svg" mapstructure:"svg"`
	PNG           bool                `yaml:"png" mapstructure:"png"`
	ThumbnailSize int                 `yaml:"thumbnail_size" mapstructure:"thumbnail_size"`
}

// MQTTConfig configures result publication. An empty broker disables it.
type MQTTConfig struct {
	Broker      string  `yaml:"broker" mapstructure:"broker"`
	ClientID    string  `yaml:"client_id" mapstructure:"client_id"`
	Username    string  `yaml:"username" mapstructure:"username"`
	Password    string  `yaml:"password" mapstructure:"password"`
	Prefix      string  `yaml:"prefix" mapstructure:"prefix"`
	QoS         int     `yaml:"qos" mapstructure:"qos"`
	Retain      bool    `yaml:"retain" mapstructure:"retain"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// StoreConfig configures the run store. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	SRID int    `yaml:"srid" mapstructure:"srid"`
}

// Load reads configuration from file and environment. An empty path looks
// for config.yaml in the working directory and tolerates its absence; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("GEOCONFLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := validate.DefaultOptions()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("input.source", "")
	v.SetDefault("input.target", "")
	v.SetDefault("matching.geometry", "")
	v.SetDefault("matching.attribute", "")
	v.SetDefault("matching.source_attribute", "")
	v.SetDefault("matching.target_attribute", "")
	v.SetDefault("matching.source_rule", "")
	v.SetDefault("matching.target_rule", "")
	v.SetDefault("matching.rule_file", "")
	v.SetDefault("matching.single_source", false)
	v.SetDefault("matching.single_target", true)
	v.SetDefault("matching.workers", 0)
	v.SetDefault("validation.enabled", true)
	v.SetDefault("validation.threshold", def.Threshold)
	v.SetDefault("validation.context_weight", def.ContextWeight)
	v.SetDefault("validation.min_neighbors", def.MinNeighbors)
	v.SetDefault("validation.radius_growth", def.RadiusGrowth)
	v.SetDefault("validation.min_radius", def.MinRadius)
	v.SetDefault("validation.max_radius_steps", def.MaxRadiusSteps)
	v.SetDefault("validation.angle_tolerance", def.AngleTolerance)
	v.SetDefault("validation.estimator", def.Estimator)
	v.SetDefault("validation.similarity", def.Similarity)
	v.SetDefault("validation.linear_buffer", def.LinearBuffer)
	v.SetDefault("validation.max_backtrack", def.MaxBacktrack)
	v.SetDefault("validation.discover_missing", def.DiscoverMissing)
	v.SetDefault("validation.missing_search_distance", def.MissingSearchDistance)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.links", true)
	v.SetDefault("output.link_mode", "auto")
	v.SetDefault("output.thumbnail_size", 256)
	v.SetDefault("mqtt.prefix", "geoconflate")
	v.SetDefault("mqtt.client_id", "geoconflate")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", true)
	v.SetDefault("mqtt.rate_per_sec", 20)
	v.SetDefault("mqtt.burst", 5)
	v.SetDefault("mqtt.timeout_secs", 10)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("store.path", "")
	v.SetDefault("store.srid", 0)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Options converts the section to engine options.
func (c ValidationConfig) Options() validate.Options {
	return validate.Options{
		Threshold:             c.Threshold,
		ContextWeight:         c.ContextWeight,
		MinNeighbors:          c.MinNeighbors,
		RadiusGrowth:          c.RadiusGrowth,
		MinRadius:             c.MinRadius,
		MaxRadiusSteps:        c.MaxRadiusSteps,
		AngleTolerance:        c.AngleTolerance,
		Estimator:             c.Estimator,
		Similarity:            c.Similarity,
		LinearBuffer:          c.LinearBuffer,
		MaxBacktrack:          c.MaxBacktrack,
		DiscoverMissing:       c.DiscoverMissing,
		MissingSearchDistance: c.MissingSearchDistance,
	}
}

// ResultOptions converts the section to assembly options. Link mode "auto"
// joins closest points when the geometry matcher is min-distance.
func (c OutputConfig) ResultOptions(geometryMatcher string) (result.Options, error) {
	opts := result.Options{Links: c.Links, CopyTargets: c.CopyTargets}
	switch c.LinkMode {
	case "", "auto":
		if geometryMatcher == "min-distance" {
			opts.LinkMode = result.LinkClosest
		}
	case "interior":
		opts.LinkMode = result.LinkInterior
	case "closest":
		opts.LinkMode = result.LinkClosest
	default:
		return opts, eris.Wrapf(ErrConfig, "unknown link mode %q", c.LinkMode)
	}
	for _, a := range c.Aggregations {
		if a.Attribute == "" {
			return opts, eris.Wrapf(ErrConfig, "aggregation %q without attribute", a.Function)
		}
		agg, err := aggregate.New(a.Function, a.CountNulls)
		if err != nil {
			return opts, err
		}
		opts.Aggregations = append(opts.Aggregations, result.Aggregation{Attribute: a.Attribute, Aggregator: agg})
	}
	if len(opts.Aggregations) > 0 {
		opts.CopyTargets = true
	}
	return opts, nil
}

// Validate checks every section that can be checked without the inputs.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return eris.Wrapf(ErrConfig, "log level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return eris.Wrapf(ErrConfig, "log format %q, want json or console", c.Log.Format)
	}
	if c.Matching.Workers < 0 {
		return eris.Wrapf(ErrConfig, "negative worker count %d", c.Matching.Workers)
	}
	if c.Validation.Enabled {
		if err := c.Validation.Options().Validate(); err != nil {
			return err
		}
	}
	if _, err := c.Output.ResultOptions(c.Matching.Geometry); err != nil {
		return err
	}
	if c.Output.ThumbnailSize < 0 {
		return eris.Wrapf(ErrConfig, "negative thumbnail size %d", c.Output.ThumbnailSize)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return eris.Wrapf(ErrConfig, "mqtt qos %d outside 0..2", c.MQTT.QoS)
	}
	if c.Store.SRID < 0 {
		return eris.Wrapf(ErrConfig, "negative srid %d", c.Store.SRID)
	}
	return nil
}

// ValidateInput checks that both datasets and a matcher are named.
func (c *Config) ValidateInput() error {
	switch {
	case c.Input.Source == "":
		return eris.Wrap(ErrConfig, "input.source is required")
	case c.Input.Target == "":
		return eris.Wrap(ErrConfig, "input.target is required")
	case c.Matching.Geometry == "" && c.Matching.Attribute == "":
		return eris.Wrap(ErrConfig, "matching.geometry or matching.attribute is required")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
