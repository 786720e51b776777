package saga

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-fulfillment/internal/contracts"
)

func TestMemoryStateStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	id := uuid.New()

	_, err := store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	inst, created, err := store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, inst.CorrelationID)

	// A fresh instance is not persisted until Save.
	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, store.Count())

	inst.CurrentState = StateReservingInventory
	inst.TotalPrice = 42.50
	require.NoError(t, store.Save(ctx, inst))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateReservingInventory, loaded.CurrentState)
	assert.Equal(t, 42.50, loaded.TotalPrice)

	_, created, err = store.LoadOrCreate(ctx, id)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, store.Finalize(ctx, id))
	assert.Zero(t, store.Count())

	_, err = store.Load(ctx, id)
	assert.ErrorIs(t, err, ErrFinalized)
	_, _, err = store.LoadOrCreate(ctx, id)
	assert.ErrorIs(t, err, ErrFinalized)

	// Finalize is idempotent.
	require.NoError(t, store.Finalize(ctx, id))
}

func TestMemoryStateStoreSaveUpserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	id := uuid.New()

	require.NoError(t, store.Save(ctx, &Instance{CorrelationID: id, CurrentState: StateReservingInventory}))
	require.NoError(t, store.Save(ctx, &Instance{CorrelationID: id, CurrentState: StateProcessingPayment}))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateProcessingPayment, loaded.CurrentState)
	assert.Equal(t, 1, store.Count())
}

func TestMemoryStateStoreDoesNotAliasCallerState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStateStore()
	id := uuid.New()

	inst := &Instance{
		CorrelationID: id,
		CurrentState:  StateReservingInventory,
		Items:         []contracts.Item{{ProductID: uuid.New(), Quantity: 1}},
	}
	require.NoError(t, store.Save(ctx, inst))

	// Mutating the caller's copy after Save must not leak into the store.
	inst.CurrentState = StateFailed
	inst.Items[0].Quantity = 99

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StateReservingInventory, loaded.CurrentState)
	assert.Equal(t, 1, loaded.Items[0].Quantity)

	// Nor must mutating a loaded copy affect subsequent loads.
	loaded.Items[0].Quantity = 77
	again, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
}
