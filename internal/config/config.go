// Package config holds the importer configuration, layered as
// defaults < YAML file < environment. Flag overrides are applied by the CLI
// on top of the loaded result.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Environment variable names recognized by ApplyEnv.
const (
	EnvStoragePath  = "DWARF2DB_STORAGE_PATH"
	EnvDatabaseName = "DWARF2DB_DATABASE_NAME"
	EnvLogLevel     = "DWARF2DB_LOG_LEVEL"
	EnvMaxEntries   = "DWARF2DB_MAX_TYPE_ENTRIES"
	EnvNameRetryCap = "DWARF2DB_NAME_RETRY_CAP"
)

// Config is the full importer configuration.
type Config struct {
	// StoragePath is the directory holding the DuckDB type store.
	StoragePath string `yaml:"storage_path"`

	// DatabaseName names the DuckDB file (without extension).
	DatabaseName string `yaml:"database_name"`

	// LogLevel is a zerolog level string (trace/debug/info/warn/error).
	LogLevel string `yaml:"log_level"`

	// MaxTypeEntries caps the type database; 0 means unlimited.
	MaxTypeEntries int `yaml:"max_type_entries"`

	// NameRetryCap bounds the collision-renaming loop.
	NameRetryCap int `yaml:"name_retry_cap"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StoragePath:    "./dwarf2db-data",
		DatabaseName:   "types",
		LogLevel:       "info",
		MaxTypeEntries: 0,
		NameRetryCap:   64,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty), then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from DWARF2DB_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvStoragePath); v != "" {
		c.StoragePath = v
	}
	if v := os.Getenv(EnvDatabaseName); v != "" {
		c.DatabaseName = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvMaxEntries); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTypeEntries = n
		}
	}
	if v := os.Getenv(EnvNameRetryCap); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.NameRetryCap = n
		}
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path must not be empty")
	}
	if c.DatabaseName == "" {
		return fmt.Errorf("database_name must not be empty")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	if c.MaxTypeEntries < 0 {
		return fmt.Errorf("max_type_entries must not be negative")
	}
	if c.NameRetryCap <= 0 {
		return fmt.Errorf("name_retry_cap must be positive")
	}
	return nil
}

// Level returns the parsed zerolog level.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
