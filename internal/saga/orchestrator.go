package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/messaging"
)

// Orchestrator routes inbound participant events to the saga instance
// sharing their correlation id, applies the state machine, persists the
// result, and publishes the outbound commands and status events.
//
// Processing order for each event is: apply → publish → save → finalize.
// Publishing before saving means a crash between the two causes the event to
// be redelivered and re-published (a duplicate, which at-least-once
// consumers tolerate) rather than a saved state whose messages were silently
// lost. In particular the final OrderStatusChanged is always on the bus
// before the instance is finalized out of active storage.
type Orchestrator struct {
	machine   *Machine
	store     StateStore
	publisher messaging.Publisher

	// locks serializes event application per correlation id. Deliveries for
	// different orders proceed in parallel; deliveries for the same order
	// are strictly sequential, matching the load-mutate-save discipline the
	// state store requires.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewOrchestrator wires the state machine to its store and publisher.
func NewOrchestrator(store StateStore, publisher messaging.Publisher) *Orchestrator {
	return &Orchestrator{
		machine:   NewMachine(),
		store:     store,
		publisher: publisher,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

// Subscriptions is the list of message names the orchestrator consumes.
func Subscriptions() []string {
	return []string{
		contracts.EventOrderCreated,
		contracts.EventInventoryReserved,
		contracts.EventInventoryReservationFailed,
		contracts.EventPaymentProcessed,
		contracts.EventPaymentFailed,
		contracts.EventShipmentCreated,
		contracts.EventShipmentFailed,
		contracts.EventOrderShipped,
		contracts.EventOrderDelivered,
	}
}

// Register subscribes the orchestrator to every event it reacts to.
func (o *Orchestrator) Register(bus messaging.Bus) error {
	for _, name := range Subscriptions() {
		if err := bus.Subscribe(name, o); err != nil {
			return err
		}
	}
	return nil
}

// Handle implements messaging.Handler.
//
// A nil return acknowledges the delivery. Discards (duplicate seeds, events
// for missing or finalized instances, events not valid for the current
// state) are deliberate no-ops, logged and acknowledged — redelivering them
// could never succeed. Store or publish failures return the error so the bus
// redelivers and no transition is lost.
func (o *Orchestrator) Handle(ctx context.Context, env messaging.Envelope) error {
	if env.CorrelationID == uuid.Nil {
		slog.WarnContext(ctx, "discarding event without correlation id", "message", env.Name)
		return nil
	}

	lock := o.lockFor(env.CorrelationID)
	lock.Lock()
	defer lock.Unlock()

	if env.Name == contracts.EventOrderCreated {
		return o.seed(ctx, env)
	}
	return o.advance(ctx, env)
}

// seed creates a new saga instance for an unseen correlation id and issues
// the first command. Duplicate OrderCreated deliveries — an at-least-once
// bus will produce them — are discarded without issuing another command.
func (o *Orchestrator) seed(ctx context.Context, env messaging.Envelope) error {
	_, created, err := o.store.LoadOrCreate(ctx, env.CorrelationID)
	if errors.Is(err, ErrFinalized) {
		slog.InfoContext(ctx, "discarding seed for finalized saga", "correlation_id", env.CorrelationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("saga: load %s: %w", env.CorrelationID, err)
	}
	if !created {
		slog.InfoContext(ctx, "discarding duplicate order-created event", "correlation_id", env.CorrelationID)
		return nil
	}

	inst, outbound, err := o.machine.Seed(env)
	if err != nil {
		return err
	}
	if err := o.publishAll(ctx, outbound); err != nil {
		return err
	}
	if err := o.store.Save(ctx, inst); err != nil {
		return fmt.Errorf("saga: save %s: %w", inst.CorrelationID, err)
	}

	slog.InfoContext(ctx, "saga started",
		"correlation_id", inst.CorrelationID, "state", inst.CurrentState,
		"total_price", inst.TotalPrice, "currency", inst.Currency)
	return nil
}

// advance applies one participant event to an existing instance.
func (o *Orchestrator) advance(ctx context.Context, env messaging.Envelope) error {
	inst, err := o.store.Load(ctx, env.CorrelationID)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrFinalized) {
		slog.InfoContext(ctx, "discarding event for unknown or finalized saga",
			"message", env.Name, "correlation_id", env.CorrelationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("saga: load %s: %w", env.CorrelationID, err)
	}

	// A terminal instance still in active storage means a previous delivery
	// crashed after save but before finalize. Its messages were already
	// published (publish precedes save), so just complete the cleanup.
	if inst.CurrentState.IsTerminal() {
		if err := o.store.Finalize(ctx, inst.CorrelationID); err != nil {
			return fmt.Errorf("saga: finalize %s: %w", inst.CorrelationID, err)
		}
		slog.InfoContext(ctx, "finalized terminal saga left in active storage",
			"correlation_id", inst.CorrelationID, "state", inst.CurrentState)
		return nil
	}

	next, outbound, handled, err := o.machine.Apply(inst, env)
	if err != nil {
		return err
	}
	if !handled {
		slog.InfoContext(ctx, "discarding event not valid for current state",
			"message", env.Name, "correlation_id", env.CorrelationID, "state", inst.CurrentState)
		return nil
	}

	if err := o.publishAll(ctx, outbound); err != nil {
		return err
	}
	if err := o.store.Save(ctx, next); err != nil {
		return fmt.Errorf("saga: save %s: %w", next.CorrelationID, err)
	}

	slog.InfoContext(ctx, "saga transition",
		"correlation_id", next.CorrelationID, "event", env.Name,
		"from", inst.CurrentState, "to", next.CurrentState)

	if next.CurrentState.IsTerminal() {
		if err := o.store.Finalize(ctx, next.CorrelationID); err != nil {
			return fmt.Errorf("saga: finalize %s: %w", next.CorrelationID, err)
		}
		slog.InfoContext(ctx, "saga finalized",
			"correlation_id", next.CorrelationID, "state", next.CurrentState,
			"last_error", next.LastError)
	}
	return nil
}

func (o *Orchestrator) publishAll(ctx context.Context, envs []messaging.Envelope) error {
	for _, env := range envs {
		if err := o.publisher.Publish(ctx, env); err != nil {
			return fmt.Errorf("saga: publish %s: %w", env.Name, err)
		}
	}
	return nil
}

func (o *Orchestrator) lockFor(id uuid.UUID) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}

var _ messaging.Handler = (*Orchestrator)(nil)
