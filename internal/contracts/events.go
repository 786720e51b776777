package contracts

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedIntegrationEvent seeds a new saga instance. ID is the order ID
// and becomes the saga correlation id.
type OrderCreatedIntegrationEvent struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	TotalPrice float64   `json:"total_price"`
	Currency   string    `json:"currency"`
	Items      []Item    `json:"items"`
	Address    Address   `json:"address"`
}

// InventoryReservedIntegrationEvent reports a successful stock hold.
type InventoryReservedIntegrationEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// InventoryReservationFailedIntegrationEvent reports that stock could not be
// held (e.g. insufficient quantity). The saga cancels without compensation
// since nothing was acquired yet.
type InventoryReservationFailedIntegrationEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentProcessedIntegrationEvent reports a successful charge.
type PaymentProcessedIntegrationEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentFailedIntegrationEvent reports a declined or failed charge.
// PaymentID may be zero when the charge never got far enough to be assigned one.
type PaymentFailedIntegrationEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ShipmentCreatedIntegrationEvent reports that the shipping participant
// accepted the order and created a shipment.
type ShipmentCreatedIntegrationEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	ShipmentID string    `json:"shipment_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// ShipmentFailedIntegrationEvent reports that no shipment could be created.
// Both inventory and payment must be compensated when this arrives.
type ShipmentFailedIntegrationEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderShippedIntegrationEvent reports the shipment left the warehouse.
type OrderShippedIntegrationEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	ShipmentID string    `json:"shipment_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// OrderDeliveredIntegrationEvent reports the shipment reached the customer.
// Delivery notifications may race the shipped acknowledgment, so the saga
// accepts this event from several states.
type OrderDeliveredIntegrationEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	ShipmentID string    `json:"shipment_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// OrderStatusChangedIntegrationEvent is emitted by the orchestrator on every
// externally visible status transition and consumed by the status relay to
// update the order aggregate. Reason is a human-readable failure description,
// only set for "Cancelled".
type OrderStatusChangedIntegrationEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
