package participants

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/messaging"
	"github.com/jcmexdev/order-fulfillment/internal/order"
	"github.com/jcmexdev/order-fulfillment/internal/relay"
	"github.com/jcmexdev/order-fulfillment/internal/saga"
)

// memOrders is a map-backed order.StatusRepository for the wired tests.
type memOrders struct {
	statuses map[uuid.UUID]*order.Order
}

func newMemOrders() *memOrders {
	return &memOrders{statuses: make(map[uuid.UUID]*order.Order)}
}

func (m *memOrders) Apply(ctx context.Context, orderID uuid.UUID, status, reason string) error {
	if o, ok := m.statuses[orderID]; ok && o.Status == status {
		return nil
	}
	m.statuses[orderID] = &order.Order{ID: orderID, Status: status, Reason: reason}
	return nil
}

func (m *memOrders) Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	o, ok := m.statuses[orderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

// system wires the orchestrator, all three participants, and the status
// relay on one in-process bus, as cmd/ does against NATS.
type system struct {
	bus       *messaging.MemoryBus
	store     *saga.MemoryStateStore
	inventory *Inventory
	payment   *Payment
	shipping  *Shipping
	orders    *memOrders
}

func newSystem(t *testing.T, stock map[uuid.UUID]int) *system {
	t.Helper()
	s := &system{
		bus:    messaging.NewMemoryBus(),
		store:  saga.NewMemoryStateStore(),
		orders: newMemOrders(),
	}
	s.inventory = NewInventory(s.bus, stock)
	s.payment = NewPayment(s.bus, 0)
	s.shipping = NewShipping(s.bus)

	require.NoError(t, saga.NewOrchestrator(s.store, s.bus).Register(s.bus))
	require.NoError(t, s.inventory.Register(s.bus))
	require.NoError(t, s.payment.Register(s.bus))
	require.NoError(t, s.shipping.Register(s.bus))
	require.NoError(t, relay.NewStatusConsumer(s.orders).Register(s.bus))
	require.NoError(t, s.bus.Start(context.Background()))
	return s
}

func (s *system) placeOrder(t *testing.T, orderID uuid.UUID, price float64, items []contracts.Item, addr contracts.Address) {
	t.Helper()
	env, err := messaging.NewEnvelope(contracts.EventOrderCreated, orderID, contracts.OrderCreatedIntegrationEvent{
		ID:         orderID,
		CustomerID: uuid.New(),
		TotalPrice: price,
		Currency:   "USD",
		Items:      items,
		Address:    addr,
	})
	require.NoError(t, err)
	require.NoError(t, s.bus.Publish(context.Background(), env))
}

func (s *system) orderStatus(t *testing.T, orderID uuid.UUID) *order.Order {
	t.Helper()
	o, err := s.orders.Get(context.Background(), orderID)
	require.NoError(t, err)
	return o
}

var testAddress = contracts.Address{Street: "1 Main St", City: "Springfield", PostalCode: "62704", Country: "US"}

func TestFulfillmentHappyPath(t *testing.T) {
	productID := uuid.New()
	s := newSystem(t, map[uuid.UUID]int{productID: 10})
	orderID := uuid.New()

	s.placeOrder(t, orderID, 149.99, []contracts.Item{{ProductID: productID, Quantity: 2}}, testAddress)

	assert.Empty(t, s.bus.HandlerErrors())
	assert.Equal(t, "Completed", s.orderStatus(t, orderID).Status)

	// Saga ran to completion and was finalized out of active storage.
	_, err := s.store.Load(context.Background(), orderID)
	assert.ErrorIs(t, err, saga.ErrFinalized)

	// The reservation stuck: stock went down and stayed down.
	assert.Equal(t, 8, s.inventory.Stock(productID))
	assert.Zero(t, s.payment.Refunded(orderID))
}

func TestFulfillmentInsufficientStock(t *testing.T) {
	productID := uuid.New()
	s := newSystem(t, map[uuid.UUID]int{productID: 1})
	orderID := uuid.New()

	s.placeOrder(t, orderID, 149.99, []contracts.Item{{ProductID: productID, Quantity: 5}}, testAddress)

	got := s.orderStatus(t, orderID)
	assert.Equal(t, "Cancelled", got.Status)
	assert.Contains(t, got.Reason, "insufficient stock")

	// The saga stopped before payment; nothing downstream ever ran.
	assert.Empty(t, s.bus.PublishedNamed(contracts.CommandProcessPayment))
	assert.Empty(t, s.bus.PublishedNamed(contracts.CommandCreateShipment))
	assert.Equal(t, 1, s.inventory.Stock(productID))
}

func TestFulfillmentPaymentDeclined(t *testing.T) {
	productID := uuid.New()
	s := newSystem(t, map[uuid.UUID]int{productID: 10})
	orderID := uuid.New()

	// Over the stub's decline limit.
	s.placeOrder(t, orderID, 25_000, []contracts.Item{{ProductID: productID, Quantity: 3}}, testAddress)

	got := s.orderStatus(t, orderID)
	assert.Equal(t, "Cancelled", got.Status)
	assert.Equal(t, "Card declined", got.Reason)

	// The compensating release restored the held stock.
	assert.Equal(t, 10, s.inventory.Stock(productID))
	assert.Empty(t, s.bus.PublishedNamed(contracts.CommandCreateShipment))
	assert.Zero(t, s.payment.Refunded(orderID))
}

func TestFulfillmentShipmentFailureCompensatesBoth(t *testing.T) {
	productID := uuid.New()
	s := newSystem(t, map[uuid.UUID]int{productID: 10})
	orderID := uuid.New()

	// Missing destination country makes the shipping stub reject the order
	// after inventory and payment already succeeded.
	s.placeOrder(t, orderID, 149.99, []contracts.Item{{ProductID: productID, Quantity: 2}},
		contracts.Address{Street: "1 Main St", City: "Springfield"})

	got := s.orderStatus(t, orderID)
	assert.Equal(t, "Cancelled", got.Status)
	assert.True(t, strings.Contains(got.Reason, "country"), "reason: %s", got.Reason)

	assert.Equal(t, 10, s.inventory.Stock(productID))
	assert.Equal(t, 149.99, s.payment.Refunded(orderID))
}

func TestFulfillmentDeliveredWithoutShippedAck(t *testing.T) {
	s := newSystem(t, nil)
	s.shipping.SkipShippedAck = true
	orderID := uuid.New()

	s.placeOrder(t, orderID, 149.99, []contracts.Item{{ProductID: uuid.New(), Quantity: 1}}, testAddress)

	// OrderDelivered arrived straight after ShipmentCreated; the saga must
	// still complete.
	assert.Empty(t, s.bus.PublishedNamed(contracts.EventOrderShipped))
	assert.Equal(t, "Completed", s.orderStatus(t, orderID).Status)
	_, err := s.store.Load(context.Background(), orderID)
	assert.ErrorIs(t, err, saga.ErrFinalized)
}

func TestFulfillmentUnlimitedStockWhenUnseeded(t *testing.T) {
	s := newSystem(t, nil)
	orderID := uuid.New()

	s.placeOrder(t, orderID, 149.99, []contracts.Item{{ProductID: uuid.New(), Quantity: 1_000_000}}, testAddress)

	assert.Equal(t, "Completed", s.orderStatus(t, orderID).Status)
}

func TestInventoryReleaseUnknownReservationIsDropped(t *testing.T) {
	bus := messaging.NewMemoryBus()
	inv := NewInventory(bus, nil)
	require.NoError(t, inv.Register(bus))
	require.NoError(t, bus.Start(context.Background()))

	env, err := messaging.NewEnvelope(contracts.CommandReleaseInventory, uuid.New(),
		contracts.ReleaseInventoryCommand{OrderID: uuid.New(), ReservationID: "RSV-missing"})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), env))

	// Logged and acknowledged; no event, no error.
	assert.Empty(t, bus.HandlerErrors())
	assert.Len(t, bus.Published(), 1)
}
