package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/architeacher/device-inventory/pkg/idempotency"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure"
)

const (
	lockSuffix = ":lock"
	lockValue  = "processing"
)

// IdempotencyRepository stores replayable responses in redis.
type IdempotencyRepository struct {
	client *infrastructure.RedisClient
}

func NewIdempotencyRepository(client *infrastructure.RedisClient) *IdempotencyRepository {
	return &IdempotencyRepository{client: client}
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	data, err := r.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, infrastructure.ErrCacheMiss) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting idempotency record: %w", err)
	}

	var record idempotency.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshalling idempotency record: %w", err)
	}

	return &record, nil
}

func (r *IdempotencyRepository) Set(ctx context.Context, key string, record *idempotency.Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshalling idempotency record: %w", err)
	}

	if err := r.client.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("storing idempotency record: %w", err)
	}

	return nil
}

// Lock marks key as in flight. It reports false when another request holds it.
func (r *IdempotencyRepository) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.Lock(ctx, key+lockSuffix, lockValue, ttl)
}

func (r *IdempotencyRepository) Unlock(ctx context.Context, key string) error {
	return r.client.Delete(ctx, key+lockSuffix)
}
