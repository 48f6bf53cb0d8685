package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := StateDir(root)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "claude", cfg.Worker.Command)
	assert.Equal(t, 1800, cfg.Worker.TimeoutSeconds)
	assert.Equal(t, 300, cfg.Gates.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Restart.Enabled)
	assert.Equal(t, 3, cfg.Restart.MaxRestarts)
	assert.Equal(t, 80, cfg.Restart.ContextThresholdPct)
	assert.Equal(t, 150, cfg.Restart.ToolCallLimit)
	assert.True(t, cfg.Git.AutoCommit)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadNoProjectConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "claude", cfg.Worker.Command)
}

func TestLoadProjectConfigOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeProjectConfig(t, root, `
worker:
  model: opus
  timeout_seconds: 900
gates:
  commands:
    lint: npm run lint
retry:
  max_retries: 5
`)

	cfg, err := Load(root)
	require.NoError(t, err)

	// Overridden keys take the file value.
	assert.Equal(t, "opus", cfg.Worker.Model)
	assert.Equal(t, 900, cfg.Worker.TimeoutSeconds)
	assert.Equal(t, "npm run lint", cfg.Gates.Commands["lint"])
	assert.Equal(t, 5, cfg.Retry.MaxRetries)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "claude", cfg.Worker.Command)
	assert.Equal(t, 80, cfg.Restart.ContextThresholdPct)
}

func TestLoadRejectsBrokenProjectConfig(t *testing.T) {
	root := t.TempDir()
	writeProjectConfig(t, root, "worker: [not a map")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	root := t.TempDir()
	writeProjectConfig(t, root, "database:\n  driver: oracle\n")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestEnvVarOverrides(t *testing.T) {
	t.Setenv("DEBUSSY_WORKER_MODEL", "sonnet")
	t.Setenv("DEBUSSY_RESTART_ENABLED", "false")
	t.Setenv("DEBUSSY_RETRY_MAX_RETRIES", "7")
	t.Setenv("DEBUSSY_GITHUB_TOKEN", "ghp_xxx")

	cfg := Default()
	overridden := ApplyEnvVars(cfg)

	assert.Equal(t, "sonnet", cfg.Worker.Model)
	assert.False(t, cfg.Restart.Enabled)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, "ghp_xxx", cfg.Trackers.GitHub.Token)
	assert.Len(t, overridden, 4)
}

func TestEnvVarBeatsProjectConfig(t *testing.T) {
	root := t.TempDir()
	writeProjectConfig(t, root, "worker:\n  model: opus\n")
	t.Setenv("DEBUSSY_WORKER_MODEL", "haiku")

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "haiku", cfg.Worker.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty worker command", func(c *Config) { c.Worker.Command = "" }, "worker.command"},
		{"zero worker timeout", func(c *Config) { c.Worker.TimeoutSeconds = 0 }, "worker.timeout_seconds"},
		{"zero gate timeout", func(c *Config) { c.Gates.TimeoutSeconds = 0 }, "gates.timeout_seconds"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"threshold over 100", func(c *Config) { c.Restart.ContextThresholdPct = 150 }, "context_threshold_pct"},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	root := t.TempDir()

	cfg := Default()
	cfg.Worker.Model = "opus"
	cfg.Notify.WebhookURL = "https://hooks.example.com/debussy"
	require.NoError(t, Save(cfg, root))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "opus", loaded.Worker.Model)
	assert.Equal(t, "https://hooks.example.com/debussy", loaded.Notify.WebhookURL)
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", ".debussy", "state.db"), DBPath("/p"))
	assert.Equal(t, filepath.Join("/p", ".debussy", "debussy.pid"), PIDPath("/p"))
	assert.Equal(t,
		filepath.Join("/p", ".debussy", "logs", "run_r1_phase_2.1.log"),
		LogPath("/p", "r1", "2.1"))
}
