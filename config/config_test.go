package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")

	content := `
heartbeat:
  interval: 2s
  timeout: 1s
  missThreshold: 4
  minInterval: 500ms
  maxInterval: 20s
  degradedGrace: 10s
command:
  defaultTimeout: 3s
  maxRetries: 1
  maxBackoff: 10s
streams:
  gps:
    capacity: 64
    strategy: priority
    overflowPolicy: drop-newest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Heartbeat.Interval.Std())
	assert.Equal(t, 4, cfg.Heartbeat.MissThreshold)
	assert.Equal(t, 1, cfg.Command.MaxRetries)

	gps := cfg.StreamFor("gps")
	assert.Equal(t, 64, gps.Capacity)
	assert.Equal(t, "priority", gps.Strategy)
	assert.Equal(t, "drop-newest", gps.OverflowPolicy)
	// Unset per-stream fields inherit the defaults
	assert.Equal(t, cfg.StreamDefault.MaxBlock, gps.MaxBlock)
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.json")

	content := `{"command": {"defaultTimeout": "7s", "maxRetries": 3, "maxBackoff": "20s"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.Command.DefaultTimeout.Std())
	assert.Equal(t, 3, cfg.Command.MaxRetries)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/engine.yaml")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNAPSE_NATS_URL", "nats://broker:4222")
	t.Setenv("SYNAPSE_LISTEN_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, ":9999", cfg.Transport.ListenAddr)
}

func TestStreamForUnknownStreamUsesDefault(t *testing.T) {
	cfg := Default()
	sc := cfg.StreamFor("never-configured")
	assert.Equal(t, cfg.StreamDefault, sc)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero heartbeat interval", func(c *Config) { c.Heartbeat.Interval = 0 }},
		{"miss threshold below one", func(c *Config) { c.Heartbeat.MissThreshold = 0 }},
		{"max interval below interval", func(c *Config) { c.Heartbeat.MaxInterval = c.Heartbeat.Interval / 2 }},
		{"negative command retries", func(c *Config) { c.Command.MaxRetries = -1 }},
		{"bad stream strategy", func(c *Config) { c.StreamDefault.Strategy = "random" }},
		{"bad overflow policy", func(c *Config) { c.StreamDefault.OverflowPolicy = "explode" }},
		{"block without maxBlock", func(c *Config) {
			c.StreamDefault.OverflowPolicy = "block"
			c.StreamDefault.MaxBlock = 0
		}},
		{"reconnect multiplier below one", func(c *Config) { c.Reconnect.Multiplier = 0.5 }},
		{"nats enabled without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.URL = ""
		}},
		{"zero event queue", func(c *Config) { c.EventQueue = 0 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(Default())

	cfg := sc.Get()
	require.NotNil(t, cfg)

	bad := Default()
	bad.Heartbeat.Interval = 0
	require.Error(t, sc.Update(bad))

	good := Default()
	good.Command.MaxRetries = 7
	require.NoError(t, sc.Update(good))
	assert.Equal(t, 7, sc.Get().Command.MaxRetries)
}
