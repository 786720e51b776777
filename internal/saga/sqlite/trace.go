package sqlite

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// traceInfo holds the OTel identifiers extracted from a context.
type traceInfo struct {
	TraceID string // W3C trace ID, 32 lowercase hex chars
	SpanID  string // W3C span ID, 16 lowercase hex chars
}

// extractTraceInfo reads the active OpenTelemetry span from ctx. The
// messaging layer extracts the traceparent header from the envelope before
// invoking a handler, so by the time a transition is saved here the context
// carries the producer's trace. If no active span exists (e.g. in unit
// tests) both fields are empty strings.
func extractTraceInfo(ctx context.Context) traceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return traceInfo{}
	}
	return traceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
