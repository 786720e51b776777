package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// MemoryBus is an in-process Bus for tests and local development.
//
// Publish enqueues the envelope and records it; deliveries are pumped in
// FIFO order once the currently running handler (if any) returns. That keeps
// dispatch fully deterministic and single-threaded while still behaving like
// a real bus: a handler that publishes never re-enters itself or another
// handler mid-flight.
//
// There is no redelivery loop; a handler error is recorded and the message
// is dropped. Tests that care about redelivery semantics drive the handler
// directly.
type MemoryBus struct {
	mu        sync.Mutex
	handlers  map[string][]Handler
	queue     []Envelope
	published []Envelope
	errs      []error
	pumping   bool
	running   bool
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Publish records the envelope and schedules delivery. When called outside a
// handler it pumps the queue to completion before returning, so by the time
// a test's Publish returns, every transitively triggered message has been
// delivered.
func (b *MemoryBus) Publish(ctx context.Context, env Envelope) error {
	injectTrace(ctx, &env)

	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("memory bus: publish %s before start", env.Name)
	}
	b.published = append(b.published, env)
	b.queue = append(b.queue, env)
	if b.pumping {
		// A handler published this; the active pump will deliver it.
		b.mu.Unlock()
		return nil
	}
	b.pumping = true
	b.mu.Unlock()

	b.pump(ctx)
	return nil
}

// pump delivers queued envelopes until the queue drains.
func (b *MemoryBus) pump(ctx context.Context) {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.pumping = false
			b.mu.Unlock()
			return
		}
		env := b.queue[0]
		b.queue = b.queue[1:]
		handlers := append([]Handler(nil), b.handlers[env.Name]...)
		b.mu.Unlock()

		for _, h := range handlers {
			if err := h.Handle(extractTrace(ctx, env), env); err != nil {
				slog.Error("memory bus handler failed", "message", env.Name, "error", err)
				b.mu.Lock()
				b.errs = append(b.errs, fmt.Errorf("handle %s: %w", env.Name, err))
				b.mu.Unlock()
			}
		}
	}
}

// Subscribe registers a handler for one message name. Unlike the NATS
// transport, multiple handlers per name are allowed so a test can observe
// events while the system under test consumes them.
func (b *MemoryBus) Subscribe(name string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
	return nil
}

// Start marks the bus as running.
func (b *MemoryBus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

// Close stops the bus.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

// Published returns a copy of every envelope published so far.
func (b *MemoryBus) Published() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Envelope(nil), b.published...)
}

// PublishedNamed returns the published envelopes with the given message name.
func (b *MemoryBus) PublishedNamed(name string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Envelope
	for _, env := range b.published {
		if env.Name == name {
			out = append(out, env)
		}
	}
	return out
}

// HandlerErrors returns the errors handlers returned during pumping.
func (b *MemoryBus) HandlerErrors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.errs...)
}

// Reset clears the published record and error log. Subscriptions are kept.
func (b *MemoryBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
	b.errs = nil
}

var _ Bus = (*MemoryBus)(nil)
