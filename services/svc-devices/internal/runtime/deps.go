package runtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	inboundgrpc "github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/grpc"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/repos"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/throttled/throttled/v2"
	otelTrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

type (
	infrastructureDep struct {
		publicHTTPServer *http.Server
		adminHTTPServer  *http.Server
		grpcServer       *grpc.Server
		healthReporter   *inboundgrpc.HealthReporter
		dbPool           *pgxpool.Pool
		redisClient      *infrastructure.RedisClient
		logger           logger.Logger
		metricsClient    metrics.Client
		tracerProvider   otelTrace.TracerProvider
	}

	repositories struct {
		secretsRepo     ports.SecretsRepository
		deviceRepo      *repos.DevicesRepository
		idempotencyRepo ports.IdempotencyStore
		rateLimitStore  throttled.GCRAStoreCtx
	}

	// cleanup releases one resource during shutdown.
	cleanup struct {
		resource string
		fn       func(ctx context.Context) error
	}

	dependencies struct {
		config       *config.ServiceConfig
		configLoader *config.Loader

		infra infrastructureDep
		repos repositories

		publisher      ports.LifecycleEventPublisher
		checkers       []ports.DependencyChecker
		devicesService ports.DevicesService
		app            *usecases.Application

		cleanups []cleanup
	}

	DependencyOption func(*dependencies) error
)

func initializeDependencies(ctx context.Context, opts ...DependencyOption) (*dependencies, error) {
	deps := &dependencies{}

	allOpts := append(defaultOptions(ctx), opts...)

	for _, opt := range allOpts {
		if err := opt(deps); err != nil {
			deps.release(ctx)

			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	return deps, nil
}

// onShutdown registers fn to run on shutdown. Resources are released in the
// reverse order of registration so servers stop before their stores close.
func (d *dependencies) onShutdown(resource string, fn func(ctx context.Context) error) {
	d.cleanups = append(d.cleanups, cleanup{resource: resource, fn: fn})
}

// release runs every registered cleanup and reports the failures.
func (d *dependencies) release(ctx context.Context) []error {
	var errs []error

	for i := len(d.cleanups) - 1; i >= 0; i-- {
		c := d.cleanups[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.resource, err))
		}
	}

	d.cleanups = nil

	return errs
}
