package saga

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/messaging"
)

// Order status strings published via OrderStatusChangedIntegrationEvent.
// These are what the status relay writes onto the order aggregate.
const (
	StatusInventoryReserved = "InventoryReserved"
	StatusPaid              = "Paid"
	StatusCreatingShipment  = "CreatingShipment"
	StatusShipped           = "Shipped"
	StatusDelivered         = "Delivered"
	StatusCompleted         = "Completed"
	StatusCancelled         = "Cancelled"
)

// defaultPaymentMethod is used for ProcessPaymentCommand; the seeding event
// carries no payment method, so every order is charged the same way.
const defaultPaymentMethod = "CreditCard"

// transitionKey selects a row of the transition table.
type transitionKey struct {
	state State
	event string
}

// transitionFunc applies one event to a (already cloned) instance: it
// mutates the instance, including CurrentState, and returns the messages to
// publish. It must not touch anything outside the instance; keeping
// transitions pure makes them independently testable.
type transitionFunc func(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error)

// Machine is the transition-table interpreter for the fulfillment saga.
// The zero value is not usable; call NewMachine.
type Machine struct {
	table map[transitionKey]transitionFunc
}

// NewMachine builds the machine with the full fulfillment transition table.
//
// Note the OrderDelivered rows: the shipping participant may report delivery
// before (or instead of) the shipped acknowledgment, so delivery is accepted
// from CreatingShipment and Shipped as well as WaitingForDelivery. That is
// the only reordering the table tolerates; any other (state, event) pair is
// simply not a transition and the dispatcher discards the event.
func NewMachine() *Machine {
	m := &Machine{table: make(map[transitionKey]transitionFunc)}

	m.table[transitionKey{StateReservingInventory, contracts.EventInventoryReserved}] = inventoryReserved
	m.table[transitionKey{StateReservingInventory, contracts.EventInventoryReservationFailed}] = inventoryReservationFailed
	m.table[transitionKey{StateProcessingPayment, contracts.EventPaymentProcessed}] = paymentProcessed
	m.table[transitionKey{StateProcessingPayment, contracts.EventPaymentFailed}] = paymentFailed
	m.table[transitionKey{StateCreatingShipment, contracts.EventShipmentCreated}] = shipmentCreated
	m.table[transitionKey{StateCreatingShipment, contracts.EventShipmentFailed}] = shipmentFailed
	m.table[transitionKey{StateCreatingShipment, contracts.EventOrderDelivered}] = orderDelivered
	m.table[transitionKey{StateShipped, contracts.EventOrderShipped}] = orderShipped
	m.table[transitionKey{StateShipped, contracts.EventOrderDelivered}] = orderDelivered
	m.table[transitionKey{StateWaitingForDelivery, contracts.EventOrderDelivered}] = orderDelivered

	return m
}

// Seed builds a brand-new instance from the OrderCreated event and returns
// it together with the first command (ReserveInventory). The caller decides
// whether a seed is allowed (unseen correlation id); Seed itself is pure.
func (m *Machine) Seed(env messaging.Envelope) (*Instance, []messaging.Envelope, error) {
	var evt contracts.OrderCreatedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}

	inst := &Instance{
		CorrelationID:   evt.ID,
		CurrentState:    StateReservingInventory,
		OrderID:         evt.ID,
		CustomerID:      evt.CustomerID,
		TotalPrice:      evt.TotalPrice,
		Currency:        evt.Currency,
		Items:           evt.Items,
		Address:         evt.Address,
		InventoryStatus: "Pending",
		CreatedAt:       time.Now().UTC(),
		RetryCount:      0,
	}

	reserve, err := messaging.NewEnvelope(contracts.CommandReserveInventory, inst.OrderID, contracts.ReserveInventoryCommand{
		OrderID:    inst.OrderID,
		CustomerID: inst.CustomerID,
		Items:      inst.Items,
	})
	if err != nil {
		return nil, nil, err
	}
	return inst, []messaging.Envelope{reserve}, nil
}

// Apply runs the transition for (inst.CurrentState, env.Name) on a clone of
// inst. It returns the mutated clone and the messages to publish. handled is
// false when the table has no row for the pair: the event is not valid for
// the current state and must be discarded without mutation.
func (m *Machine) Apply(inst *Instance, env messaging.Envelope) (next *Instance, outbound []messaging.Envelope, handled bool, err error) {
	fn, ok := m.table[transitionKey{inst.CurrentState, env.Name}]
	if !ok {
		return nil, nil, false, nil
	}
	next = inst.Clone()
	outbound, err = fn(next, env)
	if err != nil {
		return nil, nil, true, err
	}
	return next, outbound, true, nil
}

// --- transition table rows ---

func inventoryReserved(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.InventoryReservedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}

	inst.InventoryReservationID = evt.ReservationID
	inst.InventoryStatus = evt.Status
	if inst.InventoryStatus == "" {
		inst.InventoryStatus = StatusInventoryReserved
	}
	inst.CurrentState = StateProcessingPayment

	status, err := statusChanged(inst, StatusInventoryReserved, "")
	if err != nil {
		return nil, err
	}
	pay, err := messaging.NewEnvelope(contracts.CommandProcessPayment, inst.OrderID, contracts.ProcessPaymentCommand{
		OrderID:       inst.OrderID,
		CustomerID:    inst.CustomerID,
		Amount:        inst.TotalPrice,
		Currency:      inst.Currency,
		PaymentMethod: defaultPaymentMethod,
	})
	if err != nil {
		return nil, err
	}
	return []messaging.Envelope{status, pay}, nil
}

func inventoryReservationFailed(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.InventoryReservationFailedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}
	// Nothing was acquired yet, so no compensation commands are needed.
	inst.InventoryStatus = "Failed"
	return cancel(inst, evt.Reason)
}

func paymentProcessed(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.PaymentProcessedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}

	now := time.Now().UTC()
	inst.PaymentID = evt.PaymentID
	inst.PaymentStatus = evt.Status
	if inst.PaymentStatus == "" {
		inst.PaymentStatus = StatusPaid
	}
	inst.PaymentProcessedAt = &now
	inst.CurrentState = StateCreatingShipment

	paid, err := statusChanged(inst, StatusPaid, "")
	if err != nil {
		return nil, err
	}
	creating, err := statusChanged(inst, StatusCreatingShipment, "")
	if err != nil {
		return nil, err
	}
	ship, err := messaging.NewEnvelope(contracts.CommandCreateShipment, inst.OrderID, contracts.CreateShipmentCommand{
		OrderID:    inst.OrderID,
		CustomerID: inst.CustomerID,
		Address:    inst.Address,
		Items:      inst.Items,
	})
	if err != nil {
		return nil, err
	}
	return []messaging.Envelope{paid, creating, ship}, nil
}

func paymentFailed(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.PaymentFailedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}
	inst.PaymentStatus = "Failed"
	return cancel(inst, evt.Reason)
}

func shipmentCreated(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.ShipmentCreatedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}

	inst.ShipmentID = evt.ShipmentID
	inst.ShippingStatus = evt.Status
	if inst.ShippingStatus == "" {
		inst.ShippingStatus = StatusShipped
	}
	inst.CurrentState = StateShipped

	status, err := statusChanged(inst, StatusShipped, "")
	if err != nil {
		return nil, err
	}
	return []messaging.Envelope{status}, nil
}

func shipmentFailed(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.ShipmentFailedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}
	inst.ShippingStatus = "Failed"
	return cancel(inst, evt.Reason)
}

func orderShipped(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.OrderShippedIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}

	now := time.Now().UTC()
	if evt.ShipmentID != "" {
		inst.ShipmentID = evt.ShipmentID
	}
	inst.ShippingStatus = StatusShipped
	inst.ShippedAt = &now
	inst.CurrentState = StateWaitingForDelivery
	return nil, nil
}

func orderDelivered(inst *Instance, env messaging.Envelope) ([]messaging.Envelope, error) {
	var evt contracts.OrderDeliveredIntegrationEvent
	if err := env.Decode(&evt); err != nil {
		return nil, fmt.Errorf("saga: decode %s: %w", env.Name, err)
	}

	now := time.Now().UTC()
	if evt.ShipmentID != "" {
		inst.ShipmentID = evt.ShipmentID
	}
	inst.ShippingStatus = StatusDelivered
	inst.CompletedAt = &now
	inst.CurrentState = StateCompleted

	status, err := statusChanged(inst, StatusCompleted, "")
	if err != nil {
		return nil, err
	}
	return []messaging.Envelope{status}, nil
}

// cancel records the failure, issues the compensation commands for whatever
// was actually acquired, and moves the saga to Cancelled.
//
// Compensation is fire-and-forget: the commands are published and the saga
// terminates without waiting for any acknowledgment. A participant that
// fails to process its undo command only logs; there is no compensation
// failure event to react to.
func cancel(inst *Instance, reason string) ([]messaging.Envelope, error) {
	inst.LastError = reason
	inst.CurrentState = StateCancelled

	var out []messaging.Envelope

	// Refund before release: undo in reverse order of acquisition.
	if inst.PaymentID != uuid.Nil {
		refund, err := messaging.NewEnvelope(contracts.CommandRefundPayment, inst.OrderID, contracts.RefundPaymentCommand{
			OrderID:   inst.OrderID,
			PaymentID: inst.PaymentID,
			Amount:    inst.TotalPrice,
			Reason:    reason,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, refund)
	}
	if inst.InventoryReservationID != "" {
		release, err := messaging.NewEnvelope(contracts.CommandReleaseInventory, inst.OrderID, contracts.ReleaseInventoryCommand{
			OrderID:       inst.OrderID,
			ReservationID: inst.InventoryReservationID,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, release)
	}

	status, err := statusChanged(inst, StatusCancelled, reason)
	if err != nil {
		return nil, err
	}
	return append(out, status), nil
}

func statusChanged(inst *Instance, status, reason string) (messaging.Envelope, error) {
	return messaging.NewEnvelope(contracts.EventOrderStatusChanged, inst.OrderID, contracts.OrderStatusChangedIntegrationEvent{
		OrderID:   inst.OrderID,
		Status:    status,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}
