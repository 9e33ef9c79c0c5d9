package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Terminal  TerminalConfig
	Sandbox   SandboxConfig
	Events    EventsConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowedOrigins restricts browser origins for CORS and the terminal
	// upgrade. Empty allows any origin.
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`
	ShutdownGrace  time.Duration `envconfig:"SHUTDOWN_GRACE" default:"15s"`
	// AdminToken guards the /admin routes. Empty leaves them unmounted.
	AdminToken string `envconfig:"ADMIN_TOKEN"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// TerminalConfig controls session workspaces and the shells spawned for them.
type TerminalConfig struct {
	ProjectRoot string `envconfig:"PROJECT_ROOT" default:"/tmp/ide-workspaces"`
	// DirectShell allows an unsandboxed local shell when sandboxing is
	// disabled. Development only.
	DirectShell      bool          `envconfig:"TERMINAL_DIRECT_SHELL" default:"false"`
	Shell            string        `envconfig:"TERMINAL_SHELL" default:"/bin/bash"`
	Cols             uint16        `envconfig:"TERMINAL_COLS" default:"80"`
	Rows             uint16        `envconfig:"TERMINAL_ROWS" default:"24"`
	KillTimeout      time.Duration `envconfig:"TERMINAL_KILL_TIMEOUT" default:"3s"`
	FilterPolicyFile string        `envconfig:"FILTER_POLICY_FILE" default:""`
}

// SandboxConfig holds container sandbox configuration.
type SandboxConfig struct {
	Enabled          bool          `envconfig:"SANDBOX_ENABLED" default:"false"`
	DockerHost       string        `envconfig:"DOCKER_HOST" default:"unix:///var/run/docker.sock"`
	DockerBin        string        `envconfig:"DOCKER_BIN" default:"docker"`
	Image            string        `envconfig:"SANDBOX_IMAGE" default:"debian:bookworm-slim"`
	SetupCommand     string        `envconfig:"SANDBOX_SETUP_CMD" default:""`
	Network          string        `envconfig:"SANDBOX_NETWORK" default:"none"`
	MemoryMB         int64         `envconfig:"SANDBOX_MEMORY_MB" default:"512"`
	PidsLimit        int64         `envconfig:"SANDBOX_PIDS_LIMIT" default:"256"`
	ProvisionTimeout time.Duration `envconfig:"SANDBOX_PROVISION_TIMEOUT" default:"60s"`
}

// EventsConfig holds audit event publishing configuration. An empty URL
// disables publishing.
type EventsConfig struct {
	NATSURL       string `envconfig:"EVENTS_NATS_URL" default:""`
	SubjectPrefix string `envconfig:"EVENTS_SUBJECT_PREFIX" default:"ide.terminal"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the terminal layer cannot work with.
func (c *Config) Validate() error {
	if c.Terminal.ProjectRoot == "" {
		return fmt.Errorf("invalid config: PROJECT_ROOT must not be empty")
	}
	if c.Terminal.Cols == 0 || c.Terminal.Rows == 0 {
		return fmt.Errorf("invalid config: terminal size must be positive, got %dx%d", c.Terminal.Cols, c.Terminal.Rows)
	}
	if c.Terminal.KillTimeout <= 0 {
		return fmt.Errorf("invalid config: TERMINAL_KILL_TIMEOUT must be positive")
	}
	if c.Sandbox.Enabled && c.Sandbox.Image == "" {
		return fmt.Errorf("invalid config: SANDBOX_IMAGE is required when sandboxing is enabled")
	}
	if c.Sandbox.ProvisionTimeout <= 0 {
		return fmt.Errorf("invalid config: SANDBOX_PROVISION_TIMEOUT must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8000",
			Host:          "0.0.0.0",
			ShutdownGrace: 15 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
		Terminal: TerminalConfig{
			ProjectRoot: "/tmp/ide-workspaces",
			Shell:       "/bin/bash",
			Cols:        80,
			Rows:        24,
			KillTimeout: 3 * time.Second,
		},
		Sandbox: SandboxConfig{
			DockerHost:       "unix:///var/run/docker.sock",
			DockerBin:        "docker",
			Image:            "debian:bookworm-slim",
			Network:          "none",
			MemoryMB:         512,
			PidsLimit:        256,
			ProvisionTimeout: 60 * time.Second,
		},
		Events: EventsConfig{
			SubjectPrefix: "ide.terminal",
		},
	}
}
