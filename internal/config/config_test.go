package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, "./dwarf2db-data", cfg.StoragePath)
	require.Equal(t, "types", cfg.DatabaseName)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 0, cfg.MaxTypeEntries)
	require.Equal(t, 64, cfg.NameRetryCap)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage_path: /var/lib/dwarf2db
database_name: debugtypes
log_level: debug
max_type_entries: 5000
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/dwarf2db", cfg.StoragePath)
	require.Equal(t, "debugtypes", cfg.DatabaseName)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5000, cfg.MaxTypeEntries)

	// Fields the file does not set keep their defaults.
	require.Equal(t, 64, cfg.NameRetryCap)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage_path: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0644))

	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvStoragePath, "/tmp/override")
	t.Setenv(EnvMaxEntries, "123")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "/tmp/override", cfg.StoragePath)
	require.Equal(t, 123, cfg.MaxTypeEntries)
}

func TestApplyEnvIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv(EnvMaxEntries, "many")

	cfg := Default()
	cfg.ApplyEnv()
	require.Equal(t, 0, cfg.MaxTypeEntries)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty storage path", func(c *Config) { c.StoragePath = "" }},
		{"empty database name", func(c *Config) { c.DatabaseName = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative entry cap", func(c *Config) { c.MaxTypeEntries = -1 }},
		{"zero retry cap", func(c *Config) { c.NameRetryCap = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "debug"
	require.Equal(t, zerolog.DebugLevel, cfg.Level())

	cfg.LogLevel = "nonsense"
	require.Equal(t, zerolog.InfoLevel, cfg.Level())
}
