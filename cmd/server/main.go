package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/WebIDE/backend/internal/api/http"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "ide-terminal",
		Short:         "Terminal session backend for the browser IDE",
		Version:       http.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			srv, err := server.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}

	// Flags default to the environment so that a flag, when given, wins.
	loaded, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v; using defaults\n", err)
		loaded = config.Default()
	}
	cfg = loaded
	bindFlags(cmd, cfg)

	cmd.AddCommand(newPolicyCmd())
	cmd.SetContext(context.Background())
	return cmd
}

func bindFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	f.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "listen address")
	f.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "listen port")
	f.StringSliceVar(&cfg.Server.AllowedOrigins, "allowed-origin", cfg.Server.AllowedOrigins, "allowed browser origin (repeatable; default any)")
	f.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "log level: debug, info, warn, error")
	f.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "development logging (console, debug stack traces)")
	f.StringVar(&cfg.Terminal.ProjectRoot, "project-root", cfg.Terminal.ProjectRoot, "directory holding session workspaces")
	f.StringVar(&cfg.Terminal.Shell, "shell", cfg.Terminal.Shell, "shell started for each session")
	f.BoolVar(&cfg.Terminal.DirectShell, "direct-shell", cfg.Terminal.DirectShell, "run unsandboxed shells on this host when sandboxing is off (development only)")
	f.StringVar(&cfg.Terminal.FilterPolicyFile, "policy-file", cfg.Terminal.FilterPolicyFile, "YAML or TOML file with extra command filter rules")
	f.BoolVar(&cfg.Sandbox.Enabled, "sandbox", cfg.Sandbox.Enabled, "run each session in a container sandbox")
	f.StringVar(&cfg.Sandbox.Image, "sandbox-image", cfg.Sandbox.Image, "sandbox container image")
	f.StringVar(&cfg.Sandbox.DockerHost, "docker-host", cfg.Sandbox.DockerHost, "container engine endpoint")
	f.StringVar(&cfg.Events.NATSURL, "nats-url", cfg.Events.NATSURL, "NATS server for audit events (empty disables)")
	f.BoolVar(&cfg.RateLimit.Enabled, "rate-limit", cfg.RateLimit.Enabled, "per-client rate limiting")
}
