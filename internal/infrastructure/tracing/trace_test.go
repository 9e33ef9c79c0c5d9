package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedTracer() (*Tracer, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New("test", zap.New(core)), logs
}

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer, _ := newObservedTracer()
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	require.True(t, strings.HasPrefix(string(root.TraceID), "trace_"))
	assert.Empty(t, root.ParentID)

	child, childCtx := tracer.StartSpan(ctx, "child")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, SpanIDFrom(childCtx))
}

func TestWithRemote(t *testing.T) {
	ctx := WithRemote(context.Background(), "trace_remote", "span_remote")
	assert.Equal(t, TraceID("trace_remote"), TraceIDFrom(ctx))
	assert.Equal(t, SpanID("span_remote"), SpanIDFrom(ctx))

	ctx = WithRemote(context.Background(), "", "")
	assert.Empty(t, TraceIDFrom(ctx))
}

func TestCloseFlushesSubmittedSpans(t *testing.T) {
	tracer, logs := newObservedTracer()

	for i := 0; i < 3; i++ {
		span, _ := tracer.StartSpan(context.Background(), "op")
		span.Finish()
		tracer.Submit(span)
	}
	tracer.Close()
	tracer.Close()

	assert.Equal(t, 3, logs.FilterMessage("span completed").Len())

	// after close spans are dropped silently
	span, _ := tracer.StartSpan(context.Background(), "late")
	tracer.Submit(span)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer, logs := newObservedTracer()

	var seen TraceID
	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	router.GET("/admin/sessions/:id", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context())
		c.Status(http.StatusNotFound)
	})

	t.Run("new trace", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/sessions/abc", nil))

		assert.Equal(t, string(seen), w.Header().Get(HeaderTraceID))
		assert.NotEmpty(t, w.Header().Get(HeaderSpanID))
	})

	t.Run("propagated trace", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/sessions/abc", nil)
		req.Header.Set(HeaderTraceID, "trace_from_browser")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, TraceID("trace_from_browser"), seen)
		assert.Equal(t, "trace_from_browser", w.Header().Get(HeaderTraceID))
	})

	tracer.Close()
	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET /admin/sessions/:id", fields["operation"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
}
