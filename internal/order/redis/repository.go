// Package redis provides a Redis-backed order.StatusRepository. Each order
// is one JSON document under a namespaced key, so the gateway and front-ends
// can read the current status with a single GET.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jcmexdev/order-fulfillment/internal/order"
)

// Repository implements order.StatusRepository on Redis.
type Repository struct {
	client *redis.Client
}

// NewRepository connects a repository to the Redis server at addr.
func NewRepository(addr string) *Repository {
	return &Repository{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRepositoryWithClient wraps an existing client, for callers that share
// a pool or configure TLS/auth themselves.
func NewRepositoryWithClient(client *redis.Client) *Repository {
	return &Repository{client: client}
}

// Apply implements order.StatusRepository. Reapplying the current status is
// a no-op — the relay consumer sits on an at-least-once bus.
func (r *Repository) Apply(ctx context.Context, orderID uuid.UUID, status, reason string) error {
	key := statusKey(orderID)

	current, err := r.Get(ctx, orderID)
	if err != nil && err != order.ErrNotFound {
		return err
	}
	if current != nil && current.Status == status {
		slog.DebugContext(ctx, "order status already applied", "order_id", orderID, "status", status)
		return nil
	}

	doc, err := json.Marshal(order.Order{
		ID:        orderID,
		Status:    status,
		Reason:    reason,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: encode order %s: %w", orderID, err)
	}
	if err := r.client.Set(ctx, key, doc, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

// Get implements order.StatusRepository.
func (r *Repository) Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	raw, err := r.client.Get(ctx, statusKey(orderID)).Result()
	if err == redis.Nil {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", statusKey(orderID), err)
	}

	var o order.Order
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("redis: decode order %s: %w", orderID, err)
	}
	return &o, nil
}

// Close releases the underlying client.
func (r *Repository) Close() error {
	return r.client.Close()
}

func statusKey(orderID uuid.UUID) string {
	return fmt.Sprintf("order:status:%s", orderID)
}

var _ order.StatusRepository = (*Repository)(nil)
