// Package config provides the unified configuration for tickstore. One
// Config structure covers the conversion pipeline, the embedded database,
// and observability, organized into logical sections.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tickstore/pkg/clean"
	"github.com/ajitpratap0/tickstore/pkg/errors"
	"github.com/ajitpratap0/tickstore/pkg/storage"
)

// Config is the root configuration structure
type Config struct {
	// Database configures the embedded analytical store
	Database DatabaseConfig `yaml:"database" json:"database" mapstructure:"database"`

	// Clean sets the default cleaning behavior for conversions
	Clean clean.Config `yaml:"clean" json:"clean" mapstructure:"clean"`

	// Logging configures the structured logger
	Logging LoggingConfig `yaml:"logging" json:"logging" mapstructure:"logging"`

	// Observability toggles tracing and the metrics endpoint
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// DatabaseConfig configures the embedded database and its connection pool
type DatabaseConfig struct {
	// Path is the database file; empty means in-memory
	Path string `yaml:"path" json:"path" mapstructure:"path"`

	Pool storage.PoolConfig `yaml:"pool" json:"pool" mapstructure:"pool"`
}

// LoggingConfig configures the structured logger
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level" mapstructure:"level"`
	// Format is json or console
	Format string `yaml:"format" json:"format" mapstructure:"format"`
}

// ObservabilityConfig toggles tracing and metrics
type ObservabilityConfig struct {
	EnableTracing  bool   `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address" mapstructure:"metrics_address"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "tickstore.duckdb",
			Pool: storage.PoolConfig{
				MaxConnections: 4,
				AcquireTimeout: 5 * time.Second,
				MaxIdleTime:    5 * time.Minute,
			},
		},
		Clean: clean.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Database.Pool.MaxConnections <= 0 {
		return errors.New(errors.ErrorTypeConfig, "database.pool.max_connections must be positive")
	}
	if c.Database.Pool.AcquireTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "database.pool.acquire_timeout must be positive")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown log format %q", c.Logging.Format)
	}

	switch c.Clean.MissingValues {
	case clean.PolicyNone, clean.PolicyDrop, clean.PolicyForwardFill, clean.PolicyBackwardFill:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown missing value policy %q", c.Clean.MissingValues)
	}

	return nil
}

// Load reads configuration from an optional YAML file and TICKSTORE_*
// environment variables, layered over the defaults. Environment variables
// use underscores for nesting, e.g. TICKSTORE_DATABASE_PATH.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TICKSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dump renders the configuration as YAML
func (c *Config) Dump() (string, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal configuration")
	}
	return string(raw), nil
}
