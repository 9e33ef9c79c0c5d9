package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebIDE/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/WebIDE/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebIDE/backend/internal/terminal/session"
)

// Version is reported by the root endpoint.
const Version = "0.3.0"

const availabilityTimeout = 2 * time.Second

// breakerReporter is implemented by provisioners that guard the runtime
// with a circuit breaker.
type breakerReporter interface {
	BreakerState() resilience.State
}

// Handlers contains the admin HTTP handlers.
type Handlers struct {
	registry *session.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewHandlers creates a new handler set.
func NewHandlers(registry *session.Registry, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	return &Handlers{
		registry: registry,
		metrics:  metrics,
		logger:   logger,
	}
}

// Root handles the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "IDE Terminal Service",
		"version": Version,
	})
}

// Health reports registry and sandbox state. A sandbox outage degrades the
// service but does not fail it, because sessions fall back.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	sandbox := gin.H{"enabled": h.registry.SandboxEnabled()}

	if prov := h.registry.Provisioner(); prov != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), availabilityTimeout)
		err := prov.Available(ctx)
		cancel()

		sandbox["available"] = err == nil
		if err != nil {
			status = "degraded"
			sandbox["error"] = err.Error()
		}
		if br, ok := prov.(breakerReporter); ok {
			sandbox["breaker"] = br.BreakerState().String()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"sessions": h.registry.Len(),
		"sandbox":  sandbox,
		"metrics":  h.metrics.Snapshot(),
	})
}

// ListSessions lists live terminal sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.registry.List()
	infos := make([]session.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, session.Describe(s))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": infos,
		"count":    len(infos),
	})
}

// GetSession returns one session.
func (h *Handlers) GetSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := id.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.registry.Get(sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Describe(s))
}

// DeleteSession forcibly tears a session down. Connected clients are
// disconnected.
func (h *Handlers) DeleteSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := id.ValidateSessionID(sessionID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.registry.Get(sessionID); err != nil {
		h.respondError(c, err)
		return
	}
	h.registry.Destroy(sessionID)
	h.logger.Info("Session terminated by admin request", zap.String("session_id", sessionID))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"session_id": sessionID,
	})
}

// Metrics returns the JSON metrics snapshot.
func (h *Handlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidSessionID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
