package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection. Requests are
// labelled with the route template so session ids never become label values.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures a sandbox provisioning attempt.
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts a provisioning timer.
func NewTimer(metrics *Metrics) *Timer {
	return &Timer{start: time.Now(), metrics: metrics}
}

// Stop records the elapsed time under result and returns it.
func (t *Timer) Stop(result string) time.Duration {
	d := time.Since(t.start)
	t.metrics.RecordProvision(result, d)
	return d
}
