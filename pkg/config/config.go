// Package config loads the YAML description of a layer estimation run.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/mlstack/core/parallel"
	"github.com/YuminosukeSato/mlstack/ensemble/cache"
	"github.com/YuminosukeSato/mlstack/ensemble/estimation"
	"github.com/YuminosukeSato/mlstack/ensemble/layer"
	"github.com/YuminosukeSato/mlstack/metrics"
	"github.com/YuminosukeSato/mlstack/pkg/errors"
	"github.com/YuminosukeSato/mlstack/pkg/log"
)

// Layer kinds.
const (
	KindStack = "stack"
	KindBlend = "blend"
	KindFull  = "full"
)

// Duration is a time.Duration written as "100ms", "10m", ...
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return errors.NewConfigurationError("duration", "not a duration", raw)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root of a configuration file.
type Config struct {
	Layer  LayerConfig  `yaml:"layer"`
	Engine EngineConfig `yaml:"engine"`
	Cache  CacheConfig  `yaml:"cache"`
	Log    LogConfig    `yaml:"log"`
}

type LayerConfig struct {
	Name string `yaml:"name"`

	// Kind is one of stack, blend or full.
	Kind     string  `yaml:"kind"`
	Folds    int     `yaml:"folds"`
	Shuffle  bool    `yaml:"shuffle"`
	Seed     uint64  `yaml:"seed"`
	TestSize float64 `yaml:"test_size"`

	Proba       bool   `yaml:"proba"`
	OutputWidth int    `yaml:"output_width"`
	Scorer      string `yaml:"scorer"`

	RaiseOnException bool       `yaml:"raise_on_exception"`
	Wait             WaitConfig `yaml:"wait"`
	Verbose          bool       `yaml:"verbose"`

	Cases []CaseConfig `yaml:"cases"`
}

type WaitConfig struct {
	Interval Duration `yaml:"interval"`
	Limit    Duration `yaml:"limit"`
}

type CaseConfig struct {
	Name         string            `yaml:"name"`
	Transformers []ComponentConfig `yaml:"transformers"`
	Estimators   []ComponentConfig `yaml:"estimators"`
}

// ComponentConfig names a transformer or estimator kind and its parameters.
type ComponentConfig struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Params map[string]any `yaml:"params"`
}

type EngineConfig struct {
	// Workers defaults to the number of CPUs when zero.
	Workers int `yaml:"workers"`
	// Policy is fail-fast or drain.
	Policy string `yaml:"policy"`
	// Mode is dual or combined.
	Mode string `yaml:"mode"`
}

type CacheConfig struct {
	// Dir is used as is when set; otherwise a fresh directory is created
	// under Parent (or the system temp dir) and removed after the run.
	Dir     string   `yaml:"dir"`
	Parent  string   `yaml:"parent"`
	Keep    bool     `yaml:"keep"`
	MemoTTL Duration `yaml:"memo_ttl"`
	// Watch picks up artifacts written by other processes sharing Dir.
	Watch bool `yaml:"watch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Layer: LayerConfig{
			Kind:        KindStack,
			Folds:       2,
			OutputWidth: 1,
			Wait: WaitConfig{
				Interval: Duration(layer.DefaultWaitInterval),
				Limit:    Duration(layer.DefaultWaitLimit),
			},
		},
		Engine: EngineConfig{
			Policy: parallel.FailFast.String(),
			Mode:   estimation.Dual.String(),
		},
		Cache: CacheConfig{
			MemoTTL: Duration(cache.DefaultMemoTTL),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Unmarshal(content)
}

// Unmarshal decodes content over the defaults and validates the result.
func Unmarshal(content []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that do not depend on building components.
func (c *Config) Validate() error {
	l := c.Layer
	switch l.Kind {
	case KindStack:
		if l.Folds < 2 {
			return errors.NewConfigurationError("layer.folds", "a stacked layer needs at least 2 folds", l.Folds)
		}
	case KindBlend:
		if l.TestSize <= 0 || l.TestSize >= 1 {
			return errors.NewConfigurationError("layer.test_size", "must be in (0, 1)", l.TestSize)
		}
	case KindFull:
	default:
		return errors.NewConfigurationError("layer.kind", "must be one of stack, blend, full", l.Kind)
	}
	if l.OutputWidth < 1 {
		return errors.NewConfigurationError("layer.output_width", "must be at least 1", l.OutputWidth)
	}
	if l.Wait.Interval <= 0 || l.Wait.Limit <= 0 {
		return errors.NewConfigurationError("layer.wait", "interval and limit must be positive", l.Wait)
	}
	if len(l.Cases) == 0 {
		return errors.NewConfigurationError("layer.cases", "a layer needs at least one case", 0)
	}
	if _, err := metrics.Lookup(l.Scorer); err != nil {
		return err
	}

	if c.Engine.Workers < 0 {
		return errors.NewConfigurationError("engine.workers", "must not be negative", c.Engine.Workers)
	}
	if _, err := parallel.ParsePolicy(c.Engine.Policy); err != nil {
		return err
	}
	if _, err := estimation.ParseMode(c.Engine.Mode); err != nil {
		return err
	}

	if c.Cache.MemoTTL < 0 {
		return errors.NewConfigurationError("cache.memo_ttl", "must not be negative", c.Cache.MemoTTL.Std())
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return errors.NewConfigurationError("log.format", "must be json or console", c.Log.Format)
	}
	return nil
}
