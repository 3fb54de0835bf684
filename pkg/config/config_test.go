package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadDefaults verifies every key has its documented default
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.True(t, cfg.Reconciliation.WorkerEnabled)
	assert.Equal(t, 5000, cfg.Reconciliation.PollingIntervalMs)
	assert.Equal(t, 3, cfg.Reconciliation.MaxConcurrentJobs)
	assert.Equal(t, 10, cfg.Reconciliation.RateLimit.TokensPerInterval)
	assert.Equal(t, 3, cfg.Workflow.MaxBroadcastAttempts)
	assert.False(t, cfg.Providers.Blockbook.AsyncJobs.Enabled)
	assert.Equal(t, 4, cfg.Providers.Blockbook.AsyncJobs.TimeoutHours)
	assert.Equal(t, "info", cfg.Log.Level)

	assert.Equal(t, 5*time.Second, cfg.Reconciliation.PollingInterval())
	assert.Equal(t, 30*time.Second, cfg.Reconciliation.StopTimeout())
	assert.Equal(t, 4*time.Hour, cfg.Providers.Blockbook.AsyncJobs.AsyncJobTimeout())
}

// TestLoadFromFile verifies YAML values override defaults
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strongroom.yaml")
	yaml := `
server:
  listenAddr: ":9090"
reconciliation:
  maxConcurrentJobs: 8
  pollingIntervalMs: 250
  reorgThresholds:
    ethereum: 64
providers:
  blockbook:
    baseUrl: https://blockbook.example.com
    asyncJobs:
      enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, 8, cfg.Reconciliation.MaxConcurrentJobs)
	assert.Equal(t, 250, cfg.Reconciliation.PollingIntervalMs)
	assert.Equal(t, int64(64), cfg.Reconciliation.ReorgThresholds["ethereum"])
	assert.True(t, cfg.Providers.Blockbook.AsyncJobs.Enabled)
	assert.Equal(t, "https://blockbook.example.com", cfg.Providers.Blockbook.BaseURL)

	// Untouched keys keep defaults.
	assert.Equal(t, 3, cfg.Workflow.MaxBroadcastAttempts)
}

// TestLoadFromEnv verifies environment variables override defaults
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STRONGROOM_RECONCILIATION_MAXCONCURRENTJOBS", "12")
	t.Setenv("STRONGROOM_SERVER_LISTENADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Reconciliation.MaxConcurrentJobs)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
}

// TestValidate rejects unusable configurations
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero concurrent jobs",
			mutate:  func(c *Config) { c.Reconciliation.MaxConcurrentJobs = 0 },
			wantErr: "maxConcurrentJobs",
		},
		{
			name:    "zero polling interval",
			mutate:  func(c *Config) { c.Reconciliation.PollingIntervalMs = 0 },
			wantErr: "pollingIntervalMs",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.Reconciliation.RateLimit.TokensPerInterval = 0 },
			wantErr: "tokensPerInterval",
		},
		{
			name:    "zero async timeout",
			mutate:  func(c *Config) { c.Providers.Blockbook.AsyncJobs.TimeoutHours = 0 },
			wantErr: "timeoutHours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
