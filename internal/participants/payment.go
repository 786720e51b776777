package participants

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/messaging"
)

// defaultDeclineOver is the charge limit above which the stub declines.
const defaultDeclineOver = 10_000

// Payment consumes ProcessPayment and RefundPayment commands. Charges above
// the decline limit are rejected with "Card declined", which is the
// deterministic failure knob for tests and demos.
type Payment struct {
	publisher   messaging.Publisher
	declineOver float64

	mu      sync.Mutex
	charges map[uuid.UUID]uuid.UUID // orderID -> paymentID
	refunds map[uuid.UUID]float64   // orderID -> refunded amount
}

// NewPayment builds the stub. declineOver <= 0 selects the default limit.
func NewPayment(publisher messaging.Publisher, declineOver float64) *Payment {
	if declineOver <= 0 {
		declineOver = defaultDeclineOver
	}
	return &Payment{
		publisher:   publisher,
		declineOver: declineOver,
		charges:     make(map[uuid.UUID]uuid.UUID),
		refunds:     make(map[uuid.UUID]float64),
	}
}

// Register subscribes the stub to its commands.
func (p *Payment) Register(bus messaging.Bus) error {
	if err := bus.Subscribe(contracts.CommandProcessPayment, messaging.HandlerFunc(p.handleProcess)); err != nil {
		return err
	}
	return bus.Subscribe(contracts.CommandRefundPayment, messaging.HandlerFunc(p.handleRefund))
}

// Refunded returns the amount refunded for an order. Test helper.
func (p *Payment) Refunded(orderID uuid.UUID) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refunds[orderID]
}

func (p *Payment) handleProcess(ctx context.Context, env messaging.Envelope) error {
	var cmd contracts.ProcessPaymentCommand
	if err := env.Decode(&cmd); err != nil {
		return fmt.Errorf("payment: decode %s: %w", env.Name, err)
	}

	if cmd.Amount > p.declineOver {
		slog.InfoContext(ctx, "payment declined", "order_id", cmd.OrderID, "amount", cmd.Amount)
		evt, err := messaging.NewEnvelope(contracts.EventPaymentFailed, cmd.OrderID,
			contracts.PaymentFailedIntegrationEvent{
				OrderID:   cmd.OrderID,
				Reason:    "Card declined",
				Timestamp: time.Now().UTC(),
			})
		if err != nil {
			return err
		}
		return p.publisher.Publish(ctx, evt)
	}

	paymentID := uuid.New()
	p.mu.Lock()
	p.charges[cmd.OrderID] = paymentID
	p.mu.Unlock()

	slog.InfoContext(ctx, "payment processed",
		"order_id", cmd.OrderID, "payment_id", paymentID, "amount", cmd.Amount, "currency", cmd.Currency)
	evt, err := messaging.NewEnvelope(contracts.EventPaymentProcessed, cmd.OrderID,
		contracts.PaymentProcessedIntegrationEvent{
			OrderID:   cmd.OrderID,
			PaymentID: paymentID,
			Amount:    cmd.Amount,
			Currency:  cmd.Currency,
			Method:    cmd.PaymentMethod,
			Status:    "Paid",
			Timestamp: time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, evt)
}

// handleRefund logs the refund and records it. There is no refund-failed
// event in the contract: the orchestrator fires this command and moves on.
func (p *Payment) handleRefund(ctx context.Context, env messaging.Envelope) error {
	var cmd contracts.RefundPaymentCommand
	if err := env.Decode(&cmd); err != nil {
		return fmt.Errorf("payment: decode %s: %w", env.Name, err)
	}

	p.mu.Lock()
	p.refunds[cmd.OrderID] += cmd.Amount
	p.mu.Unlock()

	slog.InfoContext(ctx, "payment refunded",
		"order_id", cmd.OrderID, "payment_id", cmd.PaymentID, "amount", cmd.Amount, "reason", cmd.Reason)
	return nil
}
