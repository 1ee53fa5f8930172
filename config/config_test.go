package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "humanflow:", cfg.Store.Redis.KeyPrefix)
	assert.Equal(t, 2*time.Hour, cfg.Engine.DefaultTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Engine.InteractionTTLBuffer)
	assert.Equal(t, 24*time.Hour, cfg.Engine.ResultTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"redis without addr", func(c *Config) { c.Store.Redis.Addr = "" }},
		{"zero default timeout", func(c *Config) { c.Engine.DefaultTimeout = 0 }},
		{"negative ttl buffer", func(c *Config) { c.Engine.InteractionTTLBuffer = -time.Second }},
		{"zero result ttl", func(c *Config) { c.Engine.ResultTTL = 0 }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
store:
  backend: memory
engine:
  default_timeout: 30m
  result_ttl: 1h
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Engine.DefaultTimeout)
	assert.Equal(t, time.Hour, cfg.Engine.ResultTTL)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Engine.InteractionTTLBuffer)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  redis:\n    addr: from-file:6379\n"), 0o600))

	t.Setenv("HUMANFLOW_STORE_REDIS_ADDR", "from-env:6379")
	t.Setenv("HUMANFLOW_ENGINE_DEFAULT_TIMEOUT", "45m")
	t.Setenv("HUMANFLOW_LOG_OUTPUT_PATHS", "stdout, /var/log/humanflow.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 45*time.Minute, cfg.Engine.DefaultTimeout)
	assert.Equal(t, []string{"stdout", "/var/log/humanflow.log"}, cfg.Log.OutputPaths)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Store.Backend)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("HUMANFLOW_STORE_REDIS_DB", "not-a-number")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoad_CustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.Store.Backend != "memory" {
			return assert.AnError
		}
		return nil
	}).Load()
	assert.Error(t, err)
}

func TestLogConfig_Build(t *testing.T) {
	logger, err := DefaultLogConfig().Build()
	require.NoError(t, err)
	require.NotNil(t, logger)
	_ = logger.Sync()

	_, err = LogConfig{Level: "verbose"}.Build()
	assert.Error(t, err)
}
