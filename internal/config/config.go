// Package config loads fluxmcp configuration from environment variables and
// an optional fluxmcp.yaml file. Environment variables win over file values.
package config

import (
	"time"

	"github.com/spf13/viper"

	"fluxmcp/internal/errors"
)

// MaxRowCeiling is the upper bound a configured row ceiling may take.
const MaxRowCeiling = 50000

// Secret holds a credential value that must never appear in logs,
// query strings, or config dumps.
type Secret string

// Value returns the raw secret for use in request headers only.
func (s Secret) Value() string {
	return string(s)
}

// String masks the secret. This covers %v/%s formatting and log attrs.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalYAML masks the secret in YAML dumps (config show).
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// MarshalJSON masks the secret in JSON dumps.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"***"`), nil
}

// Config holds the resolved fluxmcp configuration.
type Config struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Version string `mapstructure:"version" yaml:"version"` // auto, 1, or 2

	// v2 credentials
	Org   string `mapstructure:"org" yaml:"org"`
	Token Secret `mapstructure:"token" yaml:"token"`

	// v1 credentials
	Username string `mapstructure:"username" yaml:"username"`
	Password Secret `mapstructure:"password" yaml:"password"`

	DefaultBucket string `mapstructure:"default_bucket" yaml:"default_bucket"`
	DefaultDB     string `mapstructure:"default_db" yaml:"default_db"`
	DefaultRP     string `mapstructure:"default_rp" yaml:"default_rp"`

	RequestTimeoutSec int    `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxRows           int    `mapstructure:"max_rows" yaml:"max_rows"`
	MetricsDB         string `mapstructure:"metrics_db" yaml:"metrics_db"`
	LogLevel          string `mapstructure:"log_level" yaml:"log_level"`
}

// envBindings maps config keys to their environment variables.
// The INFLUX_* names match the original deployment convention.
var envBindings = map[string]string{
	"url":                 "INFLUX_URL",
	"version":             "INFLUX_VERSION",
	"org":                 "INFLUX_ORG",
	"token":               "INFLUX_TOKEN",
	"username":            "INFLUX_USERNAME",
	"password":            "INFLUX_PASSWORD",
	"default_bucket":      "INFLUX_DEFAULT_BUCKET",
	"default_db":          "INFLUX_DEFAULT_DB",
	"default_rp":          "INFLUX_DEFAULT_RP",
	"request_timeout_sec": "INFLUX_REQUEST_TIMEOUT_SEC",
	"max_rows":            "FLUXMCP_MAX_ROWS",
	"metrics_db":          "FLUXMCP_METRICS_DB",
	"log_level":           "FLUXMCP_LOG_LEVEL",
}

// Load reads the configuration from the environment and an optional
// fluxmcp.yaml in the given directory ("." for the working directory).
func Load(configDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", "auto")
	v.SetDefault("request_timeout_sec", 30)
	v.SetDefault("max_rows", 1000)
	v.SetDefault("log_level", "info")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrap(errors.InternalError, "binding environment", err)
		}
	}

	v.SetConfigName("fluxmcp")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		// The file is optional; env-only configuration is the common case.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(errors.InternalError, "reading config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.InternalError, "parsing configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New(errors.InvalidQueryInput, "INFLUX_URL is required")
	}
	switch c.Version {
	case "auto", "1", "2":
	default:
		return errors.Newf(errors.InvalidQueryInput, "INFLUX_VERSION must be auto, 1, or 2 (got %q)", c.Version)
	}
	if c.RequestTimeoutSec <= 0 {
		return errors.New(errors.InvalidQueryInput, "INFLUX_REQUEST_TIMEOUT_SEC must be positive")
	}
	if c.MaxRows <= 0 || c.MaxRows > MaxRowCeiling {
		return errors.Newf(errors.InvalidQueryInput, "FLUXMCP_MAX_ROWS must be between 1 and %d", MaxRowCeiling)
	}
	return nil
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
