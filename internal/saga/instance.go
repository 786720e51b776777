// Package saga implements the order fulfillment saga: a per-order state
// machine that coordinates inventory reservation, payment, and shipment over
// the message bus, compensating already-acquired resources when a later
// stage fails.
package saga

import (
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
)

// State is the saga's current position in the fulfillment workflow. Every
// non-terminal state means "waiting for one specific participant reply".
type State string

const (
	StateReservingInventory State = "ReservingInventory"
	StateProcessingPayment  State = "ProcessingPayment"
	StateCreatingShipment   State = "CreatingShipment"
	StateShipped            State = "Shipped"
	StateWaitingForDelivery State = "WaitingForDelivery"

	// Terminal states. No transition ever leaves one of these.
	StateCompleted State = "Completed"
	StateCancelled State = "Cancelled"

	// StateFailed is declared terminal but no modeled transition currently
	// produces it: participant failures always compensate into Cancelled.
	StateFailed State = "Failed"
)

// IsTerminal reports whether s is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Instance is the persisted state of one order's saga, keyed by
// CorrelationID (= the order ID). It is mutated exactly once per consumed
// event while non-terminal, always through the state machine.
type Instance struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CurrentState  State     `json:"current_state"`

	// Copied from the seeding event, immutable afterwards.
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	TotalPrice float64           `json:"total_price"`
	Currency   string            `json:"currency"`
	Items      []contracts.Item  `json:"items"`
	Address    contracts.Address `json:"address"`

	// Last-known status reported by each participant.
	InventoryStatus string `json:"inventory_status,omitempty"`
	PaymentStatus   string `json:"payment_status,omitempty"`
	ShippingStatus  string `json:"shipping_status,omitempty"`

	// Identifiers returned by participants; they drive compensation. A
	// ReleaseInventory command is only ever issued when InventoryReservationID
	// is set, a RefundPayment command only when PaymentID is set.
	InventoryReservationID string    `json:"inventory_reservation_id,omitempty"`
	PaymentID              uuid.UUID `json:"payment_id,omitempty"`
	ShipmentID             string    `json:"shipment_id,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	PaymentProcessedAt *time.Time `json:"payment_processed_at,omitempty"`
	ShippedAt          *time.Time `json:"shipped_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`

	// RetryCount is persisted for a future per-stage retry budget. Nothing
	// increments or checks it yet.
	RetryCount int `json:"retry_count"`

	// LastError is the most recent participant failure reason, overwritten
	// on every failure event.
	LastError string `json:"last_error,omitempty"`
}

// Clone returns a deep copy so stores can hand out instances without
// aliasing their internal state.
func (i *Instance) Clone() *Instance {
	cp := *i
	cp.Items = append([]contracts.Item(nil), i.Items...)
	if i.PaymentProcessedAt != nil {
		t := *i.PaymentProcessedAt
		cp.PaymentProcessedAt = &t
	}
	if i.ShippedAt != nil {
		t := *i.ShippedAt
		cp.ShippedAt = &t
	}
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
