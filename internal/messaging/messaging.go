// Package messaging defines the minimal bus abstraction the fulfillment
// services are written against, plus the transports that implement it.
//
// The contract every transport must honor: delivery is at-least-once. A
// handler that returns nil acknowledges the message; a handler that returns
// an error leaves it unacknowledged so the transport redelivers it. The saga
// orchestrator leans on this: a state mutation that failed to persist must
// be retried, never dropped.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire unit for every command and event on the bus.
type Envelope struct {
	// ID uniquely identifies this delivery's message (not the delivery
	// itself; redeliveries reuse it).
	ID uuid.UUID `json:"id"`

	// Name is the message name from the contracts package. It selects the
	// bus subject and the consumer-side decoder.
	Name string `json:"name"`

	// CorrelationID is the business key (the order ID) used to route the
	// message to the right saga instance.
	CorrelationID uuid.UUID `json:"correlation_id"`

	// Timestamp is when the message was produced.
	Timestamp time.Time `json:"timestamp"`

	// Payload is the JSON-encoded contract struct for Name.
	Payload json.RawMessage `json:"payload"`

	// Metadata carries transport-level key/values, notably the W3C
	// traceparent header so traces span process boundaries.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEnvelope marshals payload and wraps it with a fresh message ID.
func NewEnvelope(name string, correlationID uuid.UUID, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:            uuid.New(),
		Name:          name,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Payload:       raw,
	}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Handler processes one delivery. Returning an error signals the transport
// to redeliver; returning nil acknowledges.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Publisher is the outbound half of the bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Bus is a full transport: publish, subscribe, lifecycle.
// Subscribe must be called before Start; Start wires the registered handlers
// to the underlying transport and begins delivering.
type Bus interface {
	Publisher
	Subscribe(name string, h Handler) error
	Start(ctx context.Context) error
	Close() error
}
