// Package config loads schemactl run configuration and schema declaration
// files, and watches declaration files for changes.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/sqlschema/dialect"
	"github.com/GoCodeAlone/sqlschema/schema"
	"github.com/GoCodeAlone/sqlschema/tracing"
)

// Environment variables that override file settings.
const (
	EnvDSN     = "SQLSCHEMA_DSN"
	EnvDialect = "SQLSCHEMA_DIALECT"
)

// ErrMissingField is wrapped by a *schema.ConfigError for a required setting
// that is empty.
var ErrMissingField = errors.New("required setting is empty")

// Config is the schemactl run configuration.
type Config struct {
	Dialect string         `yaml:"dialect"`
	DSN     string         `yaml:"dsn"`
	Schema  string         `yaml:"schema"`
	Lock    LockConfig     `yaml:"lock"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Log     LogConfig      `yaml:"log"`
	Watch   WatchConfig    `yaml:"watch"`
	Tracing tracing.Config `yaml:"tracing"`
}

// LockConfig enables the server-side lock around schema updates.
type LockConfig struct {
	Enabled bool          `yaml:"enabled"`
	Key     string        `yaml:"key"`
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig sets the Prometheus listen address; empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns a Config with defaults applied and no connection settings.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Watch:   WatchConfig{Debounce: 500 * time.Millisecond},
		Tracing: tracing.DefaultConfig(),
	}
}

// LoadFromFile reads a YAML config file, applies environment overrides and
// resolves a relative schema path against the file's directory.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if cfg.Schema != "" && !filepath.IsAbs(cfg.Schema) {
		cfg.Schema = filepath.Join(filepath.Dir(path), cfg.Schema)
	}
	return cfg, nil
}

// Parse decodes YAML config and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv applies SQLSCHEMA_* overrides and expands ${VAR} references in
// the DSN.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDSN); v != "" {
		c.DSN = v
	}
	if v := os.Getenv(EnvDialect); v != "" {
		c.Dialect = v
	}
	c.DSN = os.ExpandEnv(c.DSN)
}

// Validate checks that the settings needed to connect are present.
func (c *Config) Validate() error {
	if _, err := dialect.Lookup(c.Dialect); err != nil {
		return err
	}
	if c.DSN == "" {
		return &schema.ConfigError{Field: "dsn", Err: ErrMissingField}
	}
	if c.Schema == "" {
		return &schema.ConfigError{Field: "schema", Err: ErrMissingField}
	}
	return nil
}

// NewLogger builds a slog logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, &schema.ConfigError{Field: "log.level", Value: c.Level, Err: err}
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, &schema.ConfigError{Field: "log.format", Value: c.Format, Err: errors.New("want text or json")}
}
