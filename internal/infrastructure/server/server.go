package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/WebIDE/backend/internal/api/http"
	"github.com/GriffinCanCode/WebIDE/backend/internal/api/middleware"
	"github.com/GriffinCanCode/WebIDE/backend/internal/api/ws"
	"github.com/GriffinCanCode/WebIDE/backend/internal/events"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/paths"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/filter"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/pty"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/sandbox"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/session"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	registry  *session.Registry
	publisher events.Publisher
	tracer    *tracing.Tracer
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	logger.Info("Initializing terminal server",
		zap.String("port", cfg.Server.Port),
		zap.String("project_root", cfg.Terminal.ProjectRoot),
		zap.Bool("sandbox", cfg.Sandbox.Enabled),
	)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	tracer := tracing.New("ide-terminal", logger.Component("trace"))

	policy, err := filter.LoadPolicy(cfg.Terminal.FilterPolicyFile)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	logger.Info("Command filter loaded",
		zap.Int("rules", len(policy.Rules())),
		zap.String("file", cfg.Terminal.FilterPolicyFile),
	)

	root, err := paths.NewRoot(cfg.Terminal.ProjectRoot)
	if err == nil {
		err = root.Ensure()
	}
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to prepare project root: %w", err)
	}

	publisher, err := events.NewPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger.Component("events"))
	if err != nil {
		// Audit events are best effort; sessions work without them.
		logger.Warn("Event publishing disabled", zap.Error(err))
		publisher = events.Nop{}
	}

	var provisioner sandbox.Provisioner
	if cfg.Sandbox.Enabled {
		engine, err := sandbox.NewEngineClient(cfg.Sandbox.DockerHost)
		if err != nil {
			_ = publisher.Close()
			tracer.Close()
			return nil, fmt.Errorf("failed to create container engine client: %w", err)
		}
		provisioner = sandbox.NewDockerProvisioner(engine, sandbox.Config{
			Image:            cfg.Sandbox.Image,
			SetupCommand:     cfg.Sandbox.SetupCommand,
			Network:          cfg.Sandbox.Network,
			MemoryMB:         cfg.Sandbox.MemoryMB,
			PidsLimit:        cfg.Sandbox.PidsLimit,
			ProvisionTimeout: cfg.Sandbox.ProvisionTimeout,
		}, logger.Component("sandbox"))
		logger.Info("Sandboxing enabled",
			zap.String("docker_host", cfg.Sandbox.DockerHost),
			zap.String("image", cfg.Sandbox.Image),
		)
	} else if cfg.Terminal.DirectShell {
		logger.Warn("Sandboxing disabled; shells run directly on this host")
	} else {
		logger.Warn("Sandboxing disabled; terminals will be unavailable")
	}

	registry := session.NewRegistry(session.Options{
		Root:        root,
		Provisioner: provisioner,
		DirectShell: cfg.Terminal.DirectShell,
		Shell:       cfg.Terminal.Shell,
		DockerBin:   cfg.Sandbox.DockerBin,
		DockerHost:  cfg.Sandbox.DockerHost,
		Cols:        cfg.Terminal.Cols,
		Rows:        cfg.Terminal.Rows,
		Supervisor:  pty.NewSupervisor(logger.Component("pty"), cfg.Terminal.KillTimeout),
		Logger:      logger.Component("session"),
		Metrics:     metrics,
		Events:      publisher,
	})

	sweepCtx, cancel := context.WithTimeout(context.Background(), cfg.Sandbox.ProvisionTimeout)
	swept, err := registry.SweepOrphans(sweepCtx)
	cancel()
	if err != nil {
		logger.Warn("Failed to sweep orphaned workspaces", zap.Error(err))
	} else if swept > 0 {
		logger.Info("Swept orphaned workspaces", zap.Int("count", swept))
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSConfigFor(cfg.Server.AllowedOrigins)))

	handlers := apihttp.NewHandlers(registry, metrics, logger.Component("http"))
	wsCfg := ws.DefaultConfig()
	wsCfg.AllowedOrigins = cfg.Server.AllowedOrigins
	wsHandler := ws.NewHandler(registry, policy, logger.Component("ws"), metrics, publisher, wsCfg)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	var limit []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit = append(limit, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	terminal := router.Group("/terminal", limit...)
	terminal.GET("", wsHandler.HandleTerminal)

	if cfg.Server.AdminToken != "" {
		admin := router.Group("/admin", append(limit, middleware.AdminAuth(cfg.Server.AdminToken))...)
		admin.GET("/sessions", handlers.ListSessions)
		admin.GET("/sessions/:id", handlers.GetSession)
		admin.DELETE("/sessions/:id", handlers.DeleteSession)
		logger.Info("Admin API enabled")
	} else {
		logger.Info("Admin API disabled; set ADMIN_TOKEN to enable it")
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", handlers.Metrics)

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		registry:  registry,
		publisher: publisher,
		tracer:    tracer,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Level,
		Development: cfg.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	return logger, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	grace := s.config.Server.ShutdownGrace
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	s.logger.Info("Shutting down server...", zap.Duration("grace", grace))
	// Hijacked terminal connections are not tracked by Shutdown; closing the
	// sessions ends their bridges.
	if err := s.registry.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to tear down sessions", zap.Error(err))
	}
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the event publisher and tracer and flushes the logger.
func (s *Server) Close() {
	s.tracer.Close()
	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher", zap.Error(err))
	}
	_ = s.logger.Sync()
}
