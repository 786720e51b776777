// Package contracts defines the bus message contracts shared by the saga
// orchestrator and the fulfillment participants (inventory, payment,
// shipping).
//
// Commands are point-to-point: exactly one participant consumes each command
// type. Integration events are broadcast: any subscriber may react. All
// messages carry the order ID, which doubles as the saga correlation id.
package contracts

import "github.com/google/uuid"

// Message names. The messaging layer maps each name to a bus subject, so
// these constants are the single registry of everything that crosses the bus.
const (
	// Commands (consumed by exactly one participant).
	CommandReserveInventory = "inventory.reserve"
	CommandReleaseInventory = "inventory.release"
	CommandProcessPayment   = "payment.process"
	CommandRefundPayment    = "payment.refund"
	CommandCreateShipment   = "shipping.create"

	// Integration events (broadcast).
	EventOrderCreated               = "order.created"
	EventInventoryReserved          = "inventory.reserved"
	EventInventoryReservationFailed = "inventory.reservation-failed"
	EventPaymentProcessed           = "payment.processed"
	EventPaymentFailed              = "payment.failed"
	EventShipmentCreated            = "shipping.shipment-created"
	EventShipmentFailed             = "shipping.shipment-failed"
	EventOrderShipped               = "order.shipped"
	EventOrderDelivered             = "order.delivered"
	EventOrderStatusChanged         = "order.status-changed"
)

// Item is a single order line, shared by the seeding event and the
// inventory/shipping commands.
type Item struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Address is the shipping destination copied into CreateShipmentCommand.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
