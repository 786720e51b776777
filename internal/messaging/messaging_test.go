package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Amount  float64   `json:"amount"`
}

func TestNewEnvelope(t *testing.T) {
	correlationID := uuid.New()
	payload := testPayload{OrderID: correlationID, Amount: 149.99}

	env, err := NewEnvelope("order.created", correlationID, payload)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, "order.created", env.Name)
	assert.Equal(t, correlationID, env.CorrelationID)
	assert.False(t, env.Timestamp.IsZero())

	var decoded testPayload
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, payload, decoded)

	// Each envelope gets its own message ID.
	other, err := NewEnvelope("order.created", correlationID, payload)
	require.NoError(t, err)
	assert.NotEqual(t, env.ID, other.ID)
}

func TestEnvelopeRoundTripsThroughJSON(t *testing.T) {
	env, err := NewEnvelope("payment.processed", uuid.New(), testPayload{Amount: 10})
	require.NoError(t, err)
	env.Metadata = map[string]string{"traceparent": "00-abc-def-01"}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var got Envelope
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.Name, got.Name)
	assert.Equal(t, env.CorrelationID, got.CorrelationID)
	assert.Equal(t, env.Metadata, got.Metadata)

	var decoded testPayload
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, 10.0, decoded.Amount)
}

func TestMemoryBusDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var seen []string
	require.NoError(t, bus.Subscribe("a", HandlerFunc(func(ctx context.Context, env Envelope) error {
		seen = append(seen, "a:"+string(env.Payload))
		return nil
	})))
	require.NoError(t, bus.Start(ctx))

	for _, p := range []string{`1`, `2`, `3`} {
		require.NoError(t, bus.Publish(ctx, Envelope{ID: uuid.New(), Name: "a", Payload: json.RawMessage(p)}))
	}
	assert.Equal(t, []string{"a:1", "a:2", "a:3"}, seen)
}

func TestMemoryBusPumpsNestedPublishes(t *testing.T) {
	// A handler that publishes must not re-enter dispatch; the nested message
	// is delivered after the current handler returns, in FIFO order.
	ctx := context.Background()
	bus := NewMemoryBus()

	var order []string
	require.NoError(t, bus.Subscribe("first", HandlerFunc(func(ctx context.Context, env Envelope) error {
		order = append(order, "first-start")
		next, err := NewEnvelope("second", env.CorrelationID, struct{}{})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, next))
		order = append(order, "first-end")
		return nil
	})))
	require.NoError(t, bus.Subscribe("second", HandlerFunc(func(ctx context.Context, env Envelope) error {
		order = append(order, "second")
		return nil
	})))
	require.NoError(t, bus.Start(ctx))

	env, err := NewEnvelope("first", uuid.New(), struct{}{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, env))

	assert.Equal(t, []string{"first-start", "first-end", "second"}, order)
	assert.Len(t, bus.Published(), 2)
}

func TestMemoryBusFanOut(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	var hits int
	h := HandlerFunc(func(ctx context.Context, env Envelope) error {
		hits++
		return nil
	})
	require.NoError(t, bus.Subscribe("evt", h))
	require.NoError(t, bus.Subscribe("evt", h))
	require.NoError(t, bus.Start(ctx))

	env, err := NewEnvelope("evt", uuid.New(), struct{}{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, env))
	assert.Equal(t, 2, hits)
}

func TestMemoryBusRecordsHandlerErrors(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	boom := errors.New("boom")
	require.NoError(t, bus.Subscribe("evt", HandlerFunc(func(ctx context.Context, env Envelope) error {
		return boom
	})))
	require.NoError(t, bus.Start(ctx))

	env, err := NewEnvelope("evt", uuid.New(), struct{}{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, env))

	errs := bus.HandlerErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)
}

func TestMemoryBusRejectsPublishBeforeStart(t *testing.T) {
	bus := NewMemoryBus()
	env, err := NewEnvelope("evt", uuid.New(), struct{}{})
	require.NoError(t, err)
	assert.Error(t, bus.Publish(context.Background(), env))
}

func TestMemoryBusPublishedNamed(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	require.NoError(t, bus.Start(ctx))

	for _, name := range []string{"a", "b", "a"} {
		env, err := NewEnvelope(name, uuid.New(), struct{}{})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, env))
	}
	assert.Len(t, bus.PublishedNamed("a"), 2)
	assert.Len(t, bus.PublishedNamed("b"), 1)
	assert.Empty(t, bus.PublishedNamed("c"))

	bus.Reset()
	assert.Empty(t, bus.Published())
}

func TestNATSBusSubjectMapping(t *testing.T) {
	b := NewNATSBus(NATSConfig{})
	assert.Equal(t, "fulfillment.order.created", b.subject("order.created"))

	b = NewNATSBus(NATSConfig{SubjectPrefix: "test."})
	assert.Equal(t, "test.inventory.reserve", b.subject("inventory.reserve"))
}

func TestNATSBusRejectsDuplicateSubscription(t *testing.T) {
	b := NewNATSBus(NATSConfig{})
	h := HandlerFunc(func(ctx context.Context, env Envelope) error { return nil })
	require.NoError(t, b.Subscribe("evt", h))
	assert.Error(t, b.Subscribe("evt", h))
}
