package tracing

import (
	"errors"

	"github.com/gin-gonic/gin"
)

// HTTPMiddleware creates Gin middleware that opens a span per request. For a
// terminal upgrade the span covers the whole connection.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithRemote(c.Request.Context(),
			TraceID(c.GetHeader(HeaderTraceID)),
			SpanID(c.GetHeader(HeaderSpanID)),
		)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.path", c.Request.URL.Path)
		span.SetTag("http.client_ip", c.ClientIP())
		if sessionID := c.Query("sessionId"); sessionID != "" {
			span.SetTag("session_id", sessionID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.SetError(errors.New(c.Errors.String()))
		}
		span.Finish()
		tracer.Submit(span)
	}
}
