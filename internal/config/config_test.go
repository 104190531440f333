package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.WebSocket.Address)
	assert.True(t, cfg.Server.WebSocket.CompactSnapshots)
	assert.Equal(t, 5*time.Second, cfg.Server.ConnectTimeout)
	assert.Equal(t, DefaultRules(), cfg.Rules)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
logging:
  level: debug
  format: json
server:
  ack_timeout: 2s
rules:
  max_mana: 8
  sweep_iteration_cap: 3
`)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 2*time.Second, cfg.Server.AckTimeout)
	assert.Equal(t, 8, cfg.Rules.MaxMana)
	assert.Equal(t, 3, cfg.Rules.SweepIterationCap)
	assert.Equal(t, 7, cfg.Rules.FieldCapacity)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MYSTIC_RULES_STARTING_HEALTH", "20")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Rules.StartingHealth)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadRules(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{AckTimeout: time.Second, ConnectTimeout: time.Second},
		Logging: LoggingConfig{Format: "console"},
		Rules:   DefaultRules(),
	}
	require.NoError(t, cfg.Validate())

	cfg.Rules.SweepIterationCap = 0
	assert.Error(t, cfg.Validate())

	cfg.Rules = DefaultRules()
	cfg.Rules.MinDeckSize = 50
	assert.Error(t, cfg.Validate())

	cfg.Rules = DefaultRules()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}
