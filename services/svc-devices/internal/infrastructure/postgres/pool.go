package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool connects to PostgreSQL, retrying the initial ping with exponential
// backoff so the service tolerates a database that starts after it.
func NewPool(ctx context.Context, cfg config.Database, retry config.Backoff, log logger.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = cfg.MinConnections
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(infrastructure.NewExponentialBackOff(retry)),
		backoff.WithMaxTries(retry.MaxAttempts),
		backoff.WithMaxElapsedTime(retry.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(err).
				Str("host", cfg.Host).
				Dur("retry_in", next).
				Msg("database not reachable yet")
		}),
	)
	if err != nil {
		pool.Close()

		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
