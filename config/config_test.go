package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := LoadConfig("")
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, int64(10<<20), cfg.Pipeline.MaxBytes)
	assert.Equal(t, 10, cfg.Pipeline.MaxBatchSize)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.DecodeTimeout)
	assert.Equal(t, "creative", cfg.Pipeline.DefaultStyle)
	assert.Equal(t, "builtin", cfg.Models.Encoder)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "captioner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  batch_workers: 2
  decode_timeout: 3s
redis:
  enabled: true
`), 0o644))

	t.Setenv("CAPTIONER_PIPELINE_MAX_IN_FLIGHT", "3")
	t.Setenv("CAPTIONER_SERVER_PORT", "8080")

	v, err := LoadConfig(path)
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.BatchWorkers)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.DecodeTimeout)
	assert.Equal(t, int64(3), cfg.Pipeline.MaxInFlight)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	v, err := LoadConfig(filepath.Join("..", "config", "config.yaml"))
	require.NoError(t, err)
	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "max bytes", mutate: func(c *Config) { c.Pipeline.MaxBytes = 0 }},
		{name: "batch size", mutate: func(c *Config) { c.Pipeline.MaxBatchSize = -1 }},
		{name: "workers", mutate: func(c *Config) { c.Pipeline.BatchWorkers = 0 }},
		{name: "in flight", mutate: func(c *Config) { c.Pipeline.MaxInFlight = 0 }},
		{name: "decode timeout", mutate: func(c *Config) { c.Pipeline.DecodeTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *cfg
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, cfg.Validate())
}
