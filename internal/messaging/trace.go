package messaging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// injectTrace copies the active span context from ctx into the envelope
// metadata using the globally registered propagator (W3C traceparent).
// Transports call it on publish so a consumer in another process can attach
// its spans to the same trace.
func injectTrace(ctx context.Context, env *Envelope) {
	if env.Metadata == nil {
		env.Metadata = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(env.Metadata))
}

// extractTrace returns a context carrying the remote span context found in
// the envelope metadata, or ctx unchanged when none is present.
func extractTrace(ctx context.Context, env Envelope) context.Context {
	if len(env.Metadata) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Metadata))
}
