package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebIDE/backend/internal/events"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/bridge"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/filter"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/session"
)

// Config holds connection settings.
type Config struct {
	// AllowedOrigins lists accepted Origin headers. Empty or "*" allows all.
	AllowedOrigins []string
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// Handler upgrades terminal connections.
type Handler struct {
	registry  *session.Registry
	policy    *filter.Policy
	logger    *zap.Logger
	metrics   *monitoring.Metrics
	publisher events.Publisher
	cfg       Config
	upgrader  websocket.Upgrader
}

// NewHandler creates a terminal handler.
func NewHandler(
	registry *session.Registry,
	policy *filter.Policy,
	logger *zap.Logger,
	metrics *monitoring.Metrics,
	publisher events.Publisher,
	cfg Config,
) *Handler {
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	h := &Handler{
		registry:  registry,
		policy:    policy,
		logger:    logger,
		metrics:   metrics,
		publisher: publisher,
		cfg:       cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleTerminal upgrades the request and runs a bridge until either side
// closes.
func (h *Handler) HandleTerminal(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID != "" {
		if err := id.ValidateSessionID(sessionID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	logger := h.logger
	if traceID := tracing.TraceIDFrom(c.Request.Context()); traceID != "" {
		logger = logger.With(zap.String("trace_id", string(traceID)))
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.keepalive(ctx, conn)

	b := bridge.New(conn, sessionID, bridge.Options{
		Registry: h.registry,
		Policy:   h.policy,
		Logger:   logger,
		Metrics:  h.metrics,
		Events:   h.publisher,
	})
	if err := b.Run(ctx); err != nil {
		logger.Warn("Terminal session failed", zap.String("remote", c.ClientIP()), zap.Error(err))
	}
}

// keepalive pings the client; a missing pong lets the read deadline expire.
func (h *Handler) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}
		}
	}
}
