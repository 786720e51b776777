package contracts

import "github.com/google/uuid"

// ReserveInventoryCommand asks the inventory participant to put a hold on
// every item of the order. The participant answers with either
// InventoryReservedIntegrationEvent or InventoryReservationFailedIntegrationEvent.
type ReserveInventoryCommand struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Items      []Item    `json:"items"`
}

// ReleaseInventoryCommand is the compensating action for a reservation.
// ReservationID is the identifier the participant returned when the hold was
// placed; the orchestrator never issues this command without one.
type ReleaseInventoryCommand struct {
	OrderID       uuid.UUID `json:"order_id"`
	ReservationID string    `json:"reservation_id"`
}

// ProcessPaymentCommand asks the payment participant to charge the customer.
type ProcessPaymentCommand struct {
	OrderID       uuid.UUID `json:"order_id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"payment_method"`
}

// RefundPaymentCommand is the compensating action for a processed payment.
type RefundPaymentCommand struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Amount    float64   `json:"amount"`
	Reason    string    `json:"reason"`
}

// CreateShipmentCommand asks the shipping participant to create a shipment
// for the reserved and paid order.
type CreateShipmentCommand struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Address    Address   `json:"address"`
	Items      []Item    `json:"items"`
}
