package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownGrace)
	assert.Empty(t, cfg.Server.AdminToken)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 20, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "/tmp/ide-workspaces", cfg.Terminal.ProjectRoot)
	assert.False(t, cfg.Terminal.DirectShell)
	assert.Equal(t, uint16(80), cfg.Terminal.Cols)
	assert.Equal(t, uint16(24), cfg.Terminal.Rows)
	assert.Equal(t, 3*time.Second, cfg.Terminal.KillTimeout)

	assert.False(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "none", cfg.Sandbox.Network)
	assert.Equal(t, 60*time.Second, cfg.Sandbox.ProvisionTimeout)

	assert.Empty(t, cfg.Events.NATSURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"HOST":                      "127.0.0.1",
		"ALLOWED_ORIGINS":           "https://a.example.com,https://b.example.com",
		"ADMIN_TOKEN":               "s3cret",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"RATE_LIMIT_RPS":            "5",
		"RATE_LIMIT_BURST":          "10",
		"RATE_LIMIT_ENABLED":        "false",
		"PROJECT_ROOT":              "/srv/workspaces",
		"TERMINAL_DIRECT_SHELL":     "true",
		"TERMINAL_COLS":             "120",
		"TERMINAL_ROWS":             "40",
		"TERMINAL_KILL_TIMEOUT":     "500ms",
		"FILTER_POLICY_FILE":        "/etc/ide/policy.yaml",
		"SANDBOX_ENABLED":           "true",
		"SANDBOX_IMAGE":             "node:20-slim",
		"SANDBOX_SETUP_CMD":         "npm ci",
		"SANDBOX_MEMORY_MB":         "1024",
		"SANDBOX_PROVISION_TIMEOUT": "2m",
		"EVENTS_NATS_URL":           "nats://localhost:4222",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "s3cret", cfg.Server.AdminToken)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "/srv/workspaces", cfg.Terminal.ProjectRoot)
	assert.True(t, cfg.Terminal.DirectShell)
	assert.Equal(t, uint16(120), cfg.Terminal.Cols)
	assert.Equal(t, uint16(40), cfg.Terminal.Rows)
	assert.Equal(t, 500*time.Millisecond, cfg.Terminal.KillTimeout)
	assert.Equal(t, "/etc/ide/policy.yaml", cfg.Terminal.FilterPolicyFile)

	assert.True(t, cfg.Sandbox.Enabled)
	assert.Equal(t, "node:20-slim", cfg.Sandbox.Image)
	assert.Equal(t, "npm ci", cfg.Sandbox.SetupCommand)
	assert.Equal(t, int64(1024), cfg.Sandbox.MemoryMB)
	assert.Equal(t, 2*time.Minute, cfg.Sandbox.ProvisionTimeout)

	assert.Equal(t, "nats://localhost:4222", cfg.Events.NATSURL)
	assert.Equal(t, "ide.terminal", cfg.Events.SubjectPrefix)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unparsable bool", map[string]string{"SANDBOX_ENABLED": "maybe"}},
		{"zero cols", map[string]string{"TERMINAL_COLS": "0"}},
		{"negative timeout", map[string]string{"TERMINAL_KILL_TIMEOUT": "-1s"}},
		{"sandbox without image", map[string]string{"SANDBOX_ENABLED": "true", "SANDBOX_IMAGE": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault never fails.
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}
