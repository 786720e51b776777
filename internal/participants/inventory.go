// Package participants contains bus-driven stub implementations of the
// fulfillment participants: inventory, payment, and shipping. Each consumes
// its commands and asynchronously reports success or failure as integration
// events correlated by order id, exactly the contract the saga depends on.
// The stubs back the simulator services under cmd/ and the end-to-end tests.
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

// Inventory consumes ReserveInventory and ReleaseInventory commands against
// an in-memory stock table.
//
// With no seeded stock every reservation succeeds (useful for the
// simulator); seed explicit quantities to exercise failures. Releases for
// unknown reservations are logged and dropped — compensation commands carry
// no failure event, so that log line is the only trace of a lost release.
type Inventory struct {
	publisher messaging.Publisher

	mu           sync.Mutex
	stock        map[uuid.UUID]int
	reservations map[string][]contracts.Item
}

// NewInventory builds the stub. stock may be nil for unlimited inventory.
func NewInventory(publisher messaging.Publisher, stock map[uuid.UUID]int) *Inventory {
	cp := make(map[uuid.UUID]int, len(stock))
	for id, qty := range stock {
		cp[id] = qty
	}
	return &Inventory{
		publisher:    publisher,
		stock:        cp,
		reservations: make(map[string][]contracts.Item),
	}
}

// Register subscribes the stub to its commands.
func (p *Inventory) Register(bus messaging.Bus) error {
	if err := bus.Subscribe(contracts.CommandReserveInventory, messaging.HandlerFunc(p.handleReserve)); err != nil {
		return err
	}
	return bus.Subscribe(contracts.CommandReleaseInventory, messaging.HandlerFunc(p.handleRelease))
}

// Stock returns the current quantity for a product. Test helper.
func (p *Inventory) Stock(productID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stock[productID]
}

func (p *Inventory) handleReserve(ctx context.Context, env messaging.Envelope) error {
	var cmd contracts.ReserveInventoryCommand
	if err := env.Decode(&cmd); err != nil {
		return fmt.Errorf("inventory: decode %s: %w", env.Name, err)
	}

	p.mu.Lock()
	reason := ""
	for _, item := range cmd.Items {
		available, tracked := p.stock[item.ProductID]
		if !tracked {
			continue // untracked products are unlimited
		}
		if available < item.Quantity {
			reason = fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
				item.ProductID, available, item.Quantity)
			break
		}
	}

	if reason != "" {
		p.mu.Unlock()
		slog.InfoContext(ctx, "inventory reservation failed", "order_id", cmd.OrderID, "reason", reason)
		return p.publishEvent(ctx, contracts.EventInventoryReservationFailed, cmd.OrderID,
			contracts.InventoryReservationFailedIntegrationEvent{
				OrderID:   cmd.OrderID,
				Reason:    reason,
				Timestamp: time.Now().UTC(),
			})
	}

	reservationID := "RSV-" + uuid.NewString()[:8]
	for _, item := range cmd.Items {
		if _, tracked := p.stock[item.ProductID]; tracked {
			p.stock[item.ProductID] -= item.Quantity
		}
	}
	p.reservations[reservationID] = cmd.Items
	p.mu.Unlock()

	slog.InfoContext(ctx, "inventory reserved", "order_id", cmd.OrderID, "reservation_id", reservationID)
	return p.publishEvent(ctx, contracts.EventInventoryReserved, cmd.OrderID,
		contracts.InventoryReservedIntegrationEvent{
			OrderID:       cmd.OrderID,
			ReservationID: reservationID,
			Status:        "InventoryReserved",
			Timestamp:     time.Now().UTC(),
		})
}

func (p *Inventory) handleRelease(ctx context.Context, env messaging.Envelope) error {
	var cmd contracts.ReleaseInventoryCommand
	if err := env.Decode(&cmd); err != nil {
		return fmt.Errorf("inventory: decode %s: %w", env.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	items, exists := p.reservations[cmd.ReservationID]
	if !exists {
		slog.WarnContext(ctx, "no reservation to release",
			"order_id", cmd.OrderID, "reservation_id", cmd.ReservationID)
		return nil
	}
	for _, item := range items {
		if _, tracked := p.stock[item.ProductID]; tracked {
			p.stock[item.ProductID] += item.Quantity
		}
	}
	delete(p.reservations, cmd.ReservationID)

	slog.InfoContext(ctx, "inventory released", "order_id", cmd.OrderID, "reservation_id", cmd.ReservationID)
	return nil
}

func (p *Inventory) publishEvent(ctx context.Context, name string, orderID uuid.UUID, payload any) error {
	env, err := messaging.NewEnvelope(name, orderID, payload)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, env)
}
