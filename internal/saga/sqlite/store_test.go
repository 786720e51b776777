package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
	"github.com/jcmexdev/order-fulfillment/internal/saga"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "sagas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testInstance(id uuid.UUID) *saga.Instance {
	now := time.Now().UTC()
	return &saga.Instance{
		CorrelationID:          id,
		CurrentState:           saga.StateProcessingPayment,
		OrderID:                id,
		CustomerID:             uuid.New(),
		TotalPrice:             149.99,
		Currency:               "USD",
		Items:                  []contracts.Item{{ProductID: uuid.New(), Quantity: 2}},
		Address:                contracts.Address{Street: "1 Main St", City: "Springfield", Country: "US"},
		InventoryStatus:        "InventoryReserved",
		InventoryReservationID: "RSV-1",
		CreatedAt:              now,
	}
}

func TestStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := uuid.New()

	_, err := st.Load(ctx, id)
	assert.ErrorIs(t, err, saga.ErrNotFound)

	inst := testInstance(id)
	require.NoError(t, st.Save(ctx, inst))

	loaded, err := st.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateProcessingPayment, loaded.CurrentState)
	assert.Equal(t, "RSV-1", loaded.InventoryReservationID)
	assert.Equal(t, 149.99, loaded.TotalPrice)
	assert.Equal(t, inst.CustomerID, loaded.CustomerID)
	require.Len(t, loaded.Items, 1)
	assert.Equal(t, 2, loaded.Items[0].Quantity)
	assert.Equal(t, "US", loaded.Address.Country)
}

func TestStoreSaveUpserts(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := uuid.New()

	inst := testInstance(id)
	require.NoError(t, st.Save(ctx, inst))

	inst.CurrentState = saga.StateCreatingShipment
	inst.PaymentID = uuid.New()
	require.NoError(t, st.Save(ctx, inst))

	loaded, err := st.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateCreatingShipment, loaded.CurrentState)
	assert.Equal(t, inst.PaymentID, loaded.PaymentID)
}

func TestStoreLoadOrCreate(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := uuid.New()

	fresh, created, err := st.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, fresh.CorrelationID)

	// Not persisted until Save.
	_, err = st.Load(ctx, id)
	assert.ErrorIs(t, err, saga.ErrNotFound)

	require.NoError(t, st.Save(ctx, testInstance(id)))
	_, created, err = st.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestStoreFinalize(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := uuid.New()

	inst := testInstance(id)
	inst.CurrentState = saga.StateCompleted
	require.NoError(t, st.Save(ctx, inst))
	require.NoError(t, st.Finalize(ctx, id))

	_, err := st.Load(ctx, id)
	assert.ErrorIs(t, err, saga.ErrFinalized)
	_, _, err = st.LoadOrCreate(ctx, id)
	assert.ErrorIs(t, err, saga.ErrFinalized)

	// Idempotent, including across restarts of the same delivery.
	require.NoError(t, st.Finalize(ctx, id))
	_, err = st.Load(ctx, id)
	assert.ErrorIs(t, err, saga.ErrFinalized)
}

func TestStoreGetAny(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := uuid.New()

	_, _, err := st.GetAny(ctx, id)
	assert.ErrorIs(t, err, saga.ErrNotFound)

	inst := testInstance(id)
	require.NoError(t, st.Save(ctx, inst))

	got, finalized, err := st.GetAny(ctx, id)
	require.NoError(t, err)
	assert.False(t, finalized)
	assert.Equal(t, saga.StateProcessingPayment, got.CurrentState)

	inst.CurrentState = saga.StateCompleted
	require.NoError(t, st.Save(ctx, inst))
	require.NoError(t, st.Finalize(ctx, id))

	got, finalized, err = st.GetAny(ctx, id)
	require.NoError(t, err)
	assert.True(t, finalized)
	assert.Equal(t, saga.StateCompleted, got.CurrentState)
}

func TestStoreTransitionLog(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	id := uuid.New()

	inst := testInstance(id)
	states := []saga.State{
		saga.StateReservingInventory,
		saga.StateProcessingPayment,
		saga.StateCreatingShipment,
		saga.StateCompleted,
	}
	for _, s := range states {
		inst.CurrentState = s
		require.NoError(t, st.Save(ctx, inst))
	}
	require.NoError(t, st.Finalize(ctx, id))

	// The audit log survives finalization and keeps application order.
	transitions, err := st.Transitions(ctx, id)
	require.NoError(t, err)
	require.Len(t, transitions, len(states))
	for i, tr := range transitions {
		assert.Equal(t, states[i], tr.State)
		assert.False(t, tr.CreatedAt.IsZero())
	}

	other, err := st.Transitions(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sagas.db")

	st, err := Open(path)
	require.NoError(t, err)
	id := uuid.New()
	require.NoError(t, st.Save(ctx, testInstance(id)))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	loaded, err := st.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, saga.StateProcessingPayment, loaded.CurrentState)
}
