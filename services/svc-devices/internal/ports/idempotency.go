package ports

import (
	"context"
	"time"

	"github.com/architeacher/device-inventory/pkg/idempotency"
)

// IdempotencyStore keeps replayable responses keyed by idempotency key.
type IdempotencyStore interface {
	// Get returns nil, nil when the key is unknown.
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Set(ctx context.Context, key string, record *idempotency.Record, ttl time.Duration) error
	// Lock returns false when another request holds the key.
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
