// Package config loads docbridge settings from a YAML file, DOCBRIDGE_*
// environment variables and built-in defaults, in that order of
// precedence from lowest to highest: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: DOCBRIDGE_MONGO_URI sets
// mongo.uri.
const EnvPrefix = "DOCBRIDGE"

// Config is the full docbridge configuration.
type Config struct {
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Schema  SchemaConfig  `mapstructure:"schema"`
	Journal JournalConfig `mapstructure:"journal"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SchemaConfig struct {
	// Dir holds the .cue table definitions.
	Dir string `mapstructure:"dir"`
}

type JournalConfig struct {
	// Path is the SQLite journal file. Empty disables journaling.
	Path string `mapstructure:"path"`
}

type EngineConfig struct {
	MaxFanOut         int `mapstructure:"max_fanout"`
	FanOutConcurrency int `mapstructure:"fanout_concurrency"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// File receives a Prometheus text dump when the command exits.
	File string `mapstructure:"file"`
}

var defaults = map[string]any{
	"mongo.uri":                 "mongodb://localhost:27017",
	"mongo.database":            "northwind",
	"mongo.timeout":             "10s",
	"schema.dir":                "./schema",
	"journal.path":              "./docbridge-journal.db",
	"engine.max_fanout":         1000,
	"engine.fanout_concurrency": 8,
	"log.level":                 "info",
	"log.format":                "text",
	"metrics.file":              "",
}

// New returns a viper instance with defaults and environment binding set.
// Callers may bind command-line flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, if given, into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxFanOut < 0 {
		errs = append(errs, fmt.Errorf("engine.max_fanout must be >= 0, got %d", c.Engine.MaxFanOut))
	}
	if c.Engine.FanOutConcurrency < 1 {
		errs = append(errs, fmt.Errorf("engine.fanout_concurrency must be >= 1, got %d", c.Engine.FanOutConcurrency))
	}
	if c.Mongo.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("mongo.timeout must be positive, got %s", c.Mongo.Timeout))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
