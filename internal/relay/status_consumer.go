// Package relay bridges the saga's OrderStatusChanged events onto the order
// aggregate's persisted status.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/messaging"
	"github.com/jcmexdev/order-fulfillment/internal/order"
)

// StatusConsumer consumes OrderStatusChangedIntegrationEvent and writes the
// status onto the order repository. Idempotency lives in the repository, so
// redeliveries are harmless.
type StatusConsumer struct {
	orders order.StatusRepository
}

// NewStatusConsumer builds the consumer.
func NewStatusConsumer(orders order.StatusRepository) *StatusConsumer {
	return &StatusConsumer{orders: orders}
}

// Register subscribes the consumer on the bus.
func (c *StatusConsumer) Register(bus messaging.Bus) error {
	return bus.Subscribe(contracts.EventOrderStatusChanged, c)
}

// Handle implements messaging.Handler. A repository failure is returned so
// the bus redelivers — a dropped status update would leave the order's
// visible state permanently behind the saga's.
func (c *StatusConsumer) Handle(ctx context.Context, env messaging.Envelope) error {
	var evt contracts.OrderStatusChangedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return fmt.Errorf("relay: decode %s: %w", env.Name, err)
	}

	if err := c.orders.Apply(ctx, evt.OrderID, evt.Status, evt.Reason); err != nil {
		return fmt.Errorf("relay: apply status %q to order %s: %w", evt.Status, evt.OrderID, err)
	}

	slog.InfoContext(ctx, "order status updated", "order_id", evt.OrderID, "status", evt.Status)
	return nil
}

var _ messaging.Handler = (*StatusConsumer)(nil)
