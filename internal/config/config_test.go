package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every COUNTER_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range append(Default().Env(), Prefix+"_DEBUG_ADDR=") {
		key, _, _ := strings.Cut(kv, "=")
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, int32(1000), cfg.Target)
	assert.Equal(t, StartupBackoff, cfg.StartupMode)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("COUNTER_DIR", "/tmp/counters")
	t.Setenv("COUNTER_TARGET", "50")
	t.Setenv("COUNTER_POLL_INTERVAL", "250us")
	t.Setenv("COUNTER_STARTUP_MODE", "watch")
	t.Setenv("COUNTER_LOG_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/counters", cfg.Dir)
	assert.Equal(t, int32(50), cfg.Target)
	assert.Equal(t, 250*time.Microsecond, cfg.PollInterval)
	assert.Equal(t, StartupWatch, cfg.StartupMode)
	assert.True(t, cfg.LogDev)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("COUNTER_TARGET", "many")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("COUNTER_TARGET", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "target must be positive")
}

func TestEnvRoundTrip(t *testing.T) {
	clearEnv(t)
	want := Default()
	want.Dir = t.TempDir()
	want.Target = 77
	want.StartupMode = StartupLegacy
	want.FlipDelay = 0
	want.AuditDir = "/var/tmp/holds"
	for _, kv := range want.Env() {
		key, value, _ := strings.Cut(kv, "=")
		t.Setenv(key, value)
	}
	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing name", func(c *Config) { c.SemName = "" }, "names are required"},
		{"lock collision", func(c *Config) { c.ShmName = c.SemName + ".lock" }, "collides"},
		{"negative target", func(c *Config) { c.Target = -3 }, "target must be positive"},
		{"negative delay", func(c *Config) { c.StartupDelay = -time.Second }, "must not be negative"},
		{"unknown mode", func(c *Config) { c.StartupMode = "eager" }, `unknown startup mode "eager"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}
