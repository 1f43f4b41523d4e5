package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// compareAndSwap replaces KEYS[1] with ARGV[2] only while it still holds ARGV[1].
var compareAndSwap = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or tonumber(current) ~= tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// RedisClient backs idempotency records and rate-limit counters.
type RedisClient struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisClient(cfg config.Cache, log logger.Logger) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	return &RedisClient{
		client: client,
		logger: log.Component("redis"),
	}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// WaitReady pings redis until it answers or the retry budget runs out.
func (c *RedisClient) WaitReady(ctx context.Context, retry config.Backoff) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.Ping(ctx)
	},
		backoff.WithBackOff(NewExponentialBackOff(retry)),
		backoff.WithMaxTries(retry.MaxAttempts),
		backoff.WithMaxElapsedTime(retry.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn().Err(err).Dur("retry_in", next).Msg("redis not reachable yet")
		}),
	)
	if err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}

	return nil
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}

func (c *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	result, err := c.client.Get(ctx, key).Bytes()

	c.logger.Debug().
		Str("key", key).
		Dur("duration", time.Since(start)).
		Bool("hit", err == nil).
		Msg("redis get")

	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}

	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}

	return result, nil
}

func (c *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}

	return nil
}

// Lock sets key only when absent and reports whether this call acquired it.
func (c *RedisClient) Lock(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	acquired, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}

	return acquired, nil
}

func (c *RedisClient) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	return nil
}

// GetInt64 returns -1 for a missing key, which is what throttled expects.
func (c *RedisClient) GetInt64(ctx context.Context, key string) (int64, time.Time, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return -1, time.Now(), nil
	}

	if err != nil {
		return 0, time.Time{}, err
	}

	return val, time.Now(), nil
}

func (c *RedisClient) SetInt64NX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

func (c *RedisClient) CompareAndSwapInt64(ctx context.Context, key string, old, new int64, ttl time.Duration) (bool, error) {
	result, err := compareAndSwap.Run(ctx, c.client, []string{key}, old, new, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}

	return result == 1, nil
}
