/*
Package tracing tags HTTP requests and terminal connections with trace and
span identifiers and logs a span line when each one completes.

# Usage

	tracer := tracing.New("ide-terminal", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "provision")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

# Trace Format

Traces use HTTP headers for propagation:
  - X-Trace-ID: identifier for the entire request flow
  - X-Span-ID: identifier for the current operation

An incoming X-Trace-ID is kept so that a browser tab can correlate its admin
calls with its terminal connection. Spans are collected on a buffered channel
and dropped, with a warning, when the buffer is full.
*/
package tracing
