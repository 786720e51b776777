package participants

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/messaging"
)

// Shipping consumes CreateShipment commands. On success it emits
// ShipmentCreated followed by the carrier notifications OrderShipped and
// OrderDelivered; orders without a destination country fail with
// ShipmentFailed.
//
// SkipShippedAck simulates the carrier race the saga must tolerate: the
// delivery notification arrives without (or before) the shipped
// acknowledgment.
type Shipping struct {
	publisher messaging.Publisher

	// SkipShippedAck suppresses the OrderShipped event so OrderDelivered
	// arrives while the saga is still in its post-creation state.
	SkipShippedAck bool
}

// NewShipping builds the stub.
func NewShipping(publisher messaging.Publisher) *Shipping {
	return &Shipping{publisher: publisher}
}

// Register subscribes the stub to its command.
func (p *Shipping) Register(bus messaging.Bus) error {
	return bus.Subscribe(contracts.CommandCreateShipment, messaging.HandlerFunc(p.handleCreate))
}

func (p *Shipping) handleCreate(ctx context.Context, env messaging.Envelope) error {
	var cmd contracts.CreateShipmentCommand
	if err := env.Decode(&cmd); err != nil {
		return fmt.Errorf("shipping: decode %s: %w", env.Name, err)
	}

	if cmd.Address.Country == "" {
		reason := "no destination country on shipping address"
		slog.InfoContext(ctx, "shipment rejected", "order_id", cmd.OrderID, "reason", reason)
		return p.publishEvent(ctx, contracts.EventShipmentFailed, cmd.OrderID,
			contracts.ShipmentFailedIntegrationEvent{
				OrderID:   cmd.OrderID,
				Reason:    reason,
				Timestamp: time.Now().UTC(),
			})
	}

	shipmentID := "SHP-" + uuid.NewString()[:8]
	slog.InfoContext(ctx, "shipment created", "order_id", cmd.OrderID, "shipment_id", shipmentID)

	if err := p.publishEvent(ctx, contracts.EventShipmentCreated, cmd.OrderID,
		contracts.ShipmentCreatedIntegrationEvent{
			OrderID:    cmd.OrderID,
			ShipmentID: shipmentID,
			Status:     "Shipped",
			Timestamp:  time.Now().UTC(),
		}); err != nil {
		return err
	}

	if !p.SkipShippedAck {
		if err := p.publishEvent(ctx, contracts.EventOrderShipped, cmd.OrderID,
			contracts.OrderShippedIntegrationEvent{
				OrderID:    cmd.OrderID,
				ShipmentID: shipmentID,
				Timestamp:  time.Now().UTC(),
			}); err != nil {
			return err
		}
	}

	return p.publishEvent(ctx, contracts.EventOrderDelivered, cmd.OrderID,
		contracts.OrderDeliveredIntegrationEvent{
			OrderID:    cmd.OrderID,
			ShipmentID: shipmentID,
			Timestamp:  time.Now().UTC(),
		})
}

func (p *Shipping) publishEvent(ctx context.Context, name string, orderID uuid.UUID, payload any) error {
	env, err := messaging.NewEnvelope(name, orderID, payload)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, env)
}
