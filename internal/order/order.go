// Package order holds the lightweight order aggregate whose persisted status
// mirrors the saga's progress. The saga never touches it directly: the
// status relay consumer applies OrderStatusChanged events out-of-band.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no status has been recorded for an order.
var ErrNotFound = errors.New("order not found")

// Order is the read side of an order as the rest of the platform sees it.
type Order struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`

	// Reason is the human-readable failure description for cancelled
	// orders, copied from the originating failure event.
	Reason string `json:"reason,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// StatusRepository persists order statuses.
type StatusRepository interface {
	// Apply records a status transition. It is idempotent per
	// (orderID, status) pair: re-applying the order's current status is a
	// no-op, since the bus may redeliver the same event.
	Apply(ctx context.Context, orderID uuid.UUID, status, reason string) error

	// Get returns the order's current status or ErrNotFound.
	Get(ctx context.Context, orderID uuid.UUID) (*Order, error)
}
