package saga

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means no active instance exists for the correlation id.
	ErrNotFound = errors.New("saga instance not found")

	// ErrFinalized means the instance reached a terminal state and was
	// removed from active storage. Events for a finalized id are stale and
	// must be discarded, never reprocessed — a finalized saga is not
	// resurrected by LoadOrCreate.
	ErrFinalized = errors.New("saga instance finalized")
)

// StateStore persists saga instances keyed by correlation id.
//
// The store is the saga's sole consistency boundary: every transition is a
// load → mutate → save against it, and implementations must serialize
// concurrent saves for the same correlation id; there is no distributed
// lock anywhere else in the system.
type StateStore interface {
	// LoadOrCreate returns the existing active instance (created=false) or a
	// fresh instance carrying only the correlation id (created=true). The
	// fresh instance is not persisted until Save. Returns ErrFinalized for
	// an id that already ran to completion.
	LoadOrCreate(ctx context.Context, correlationID uuid.UUID) (inst *Instance, created bool, err error)

	// Load returns the active instance or ErrNotFound / ErrFinalized.
	Load(ctx context.Context, correlationID uuid.UUID) (*Instance, error)

	// Save atomically upserts the instance keyed by its correlation id.
	Save(ctx context.Context, inst *Instance) error

	// Finalize removes the instance from active storage and remembers the
	// id as finalized. Idempotent: finalizing an already-finalized id is a
	// no-op, so the crash window between publish and finalize can be
	// replayed safely.
	Finalize(ctx context.Context, correlationID uuid.UUID) error
}
