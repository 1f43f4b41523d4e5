package runtime

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/architeacher/device-inventory/pkg/circuitbreaker"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics/noop"
	"github.com/architeacher/device-inventory/pkg/metrics/otelmetrics"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/events"
	inboundgrpc "github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/grpc"
	inboundhttp "github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/middleware"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/openapi"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/repos"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure"
	infraPostgres "github.com/architeacher/device-inventory/services/svc-devices/internal/infrastructure/postgres"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/services"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases"
	"github.com/hashicorp/vault/api"
)

func defaultOptions(ctx context.Context) []DependencyOption {
	return []DependencyOption{
		WithConfig(),
		WithLogger(),
		WithSecretsRepository(),
		WithConfigLoader(ctx),
		WithTracing(ctx),
		WithMetrics(),
		WithDatabase(ctx),
		WithMigrations(ctx),
		WithCache(ctx),
		WithRepositories(),
		WithEventPublishers(ctx),
		WithDevicesService(),
		WithApplication(),
		WithPublicHTTPServer(ctx),
		WithAdminHTTPServer(),
		WithGRPCServer(),
	}
}

func WithConfig() DependencyOption {
	return func(d *dependencies) error {
		cfg, err := config.Init()
		if err != nil {
			return fmt.Errorf("initializing configuration: %w", err)
		}

		d.config = cfg

		return nil
	}
}

func WithLogger() DependencyOption {
	return func(d *dependencies) error {
		d.infra.logger = logger.New(d.config.Logging.Level, d.config.Logging.Format)

		return nil
	}
}

func WithSecretsRepository() DependencyOption {
	return func(d *dependencies) error {
		if !d.config.SecretsStorage.Enabled {
			return nil
		}

		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = d.config.SecretsStorage.Address
		vaultConfig.Timeout = d.config.SecretsStorage.Timeout
		vaultConfig.MaxRetries = int(d.config.SecretsStorage.MaxRetries)

		if d.config.SecretsStorage.TLSSkipVerify {
			vaultConfig.HttpClient.Transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opt-in for local Vault dev servers
			}
		}

		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return fmt.Errorf("creating Vault client: %w", err)
		}

		if d.config.SecretsStorage.Namespace != "" {
			client.SetNamespace(d.config.SecretsStorage.Namespace)
		}

		d.repos.secretsRepo = repos.NewVaultRepository(client)

		return nil
	}
}

// WithConfigLoader overlays Vault secrets, such as database and broker
// credentials, on top of the environment configuration.
func WithConfigLoader(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		if d.repos.secretsRepo == nil {
			return nil
		}

		loader := config.NewLoader(d.config, d.repos.secretsRepo, 0)

		version, err := loader.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading secrets from Vault: %w", err)
		}

		d.infra.logger.Info().Uint("version", version).Msg("secrets loaded from Vault")
		d.configLoader = loader

		return nil
	}
}

func WithTracing(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		telemetry := d.config.Telemetry
		if !telemetry.Enabled || !telemetry.Traces.Enabled {
			d.infra.tracerProvider = infrastructure.NewNoopTracerProvider()

			return nil
		}

		tp, shutdown, err := infrastructure.NewTracerProvider(ctx, d.config.App, telemetry)
		if err != nil {
			return fmt.Errorf("initializing tracer: %w", err)
		}

		d.infra.tracerProvider = tp
		d.onShutdown("tracer_provider", shutdown)

		return nil
	}
}

func WithMetrics() DependencyOption {
	return func(d *dependencies) error {
		if !d.config.Telemetry.Metrics.Enabled {
			d.infra.metricsClient = noop.NewMetricsClient()

			return nil
		}

		client, err := otelmetrics.NewClient(d.config.App.ServiceName, d.config.Version(), middleware.Descriptors)
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}

		d.infra.metricsClient = client
		d.onShutdown("metrics", client.Shutdown)

		return nil
	}
}

func WithDatabase(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		pool, err := infraPostgres.NewPool(ctx, d.config.Database, d.config.Backoff, d.infra.logger)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}

		d.infra.dbPool = pool
		d.onShutdown("postgres", func(context.Context) error {
			pool.Close()

			return nil
		})

		return nil
	}
}

func WithMigrations(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		if !d.config.Database.MigrateOnStart {
			return nil
		}

		applied, err := infraPostgres.Migrate(ctx, d.infra.dbPool, d.infra.logger)
		if err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}

		d.infra.logger.Info().Strs("applied", applied).Msg("database schema up to date")

		return nil
	}
}

func WithCache(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		if !d.config.Cache.Enabled {
			return nil
		}

		client := infrastructure.NewRedisClient(d.config.Cache, d.infra.logger)
		d.infra.redisClient = client
		d.onShutdown("redis", func(context.Context) error {
			return client.Close()
		})

		if err := client.WaitReady(ctx, d.config.Backoff); err != nil {
			return err
		}

		return nil
	}
}

func WithRepositories() DependencyOption {
	return func(d *dependencies) error {
		d.repos.deviceRepo = repos.NewDevicesRepository(
			d.infra.dbPool,
			repos.NewPgxScanner(),
			d.infra.logger,
			repos.WithQueryTimeout(d.config.Database.QueryTimeout),
		)

		d.checkers = []ports.DependencyChecker{repos.NewDatabaseChecker(d.repos.deviceRepo)}

		if d.infra.redisClient != nil {
			d.repos.idempotencyRepo = repos.NewIdempotencyRepository(d.infra.redisClient)
			d.repos.rateLimitStore = repos.NewRateLimitStore(d.infra.redisClient)
			d.checkers = append(d.checkers, repos.NewCacheChecker(d.infra.redisClient))
		}

		return nil
	}
}

// WithEventPublishers connects the configured lifecycle event sinks. A sink
// that cannot be reached at startup fails the boot.
func WithEventPublishers(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		var sinks []ports.LifecycleEventPublisher

		if cfg := d.config.Events.MQTT; cfg.Enabled {
			publisher, err := events.NewMQTTPublisher(cfg, d.infra.logger)
			if err != nil {
				return fmt.Errorf("connecting lifecycle publisher: %w", err)
			}

			sinks = append(sinks, publisher)
		}

		if cfg := d.config.Events.InfluxDB; cfg.Enabled {
			recorder, err := events.NewInfluxRecorder(ctx, cfg, d.infra.logger)
			if err != nil {
				for _, sink := range sinks {
					_ = sink.Close()
				}

				return fmt.Errorf("connecting state history recorder: %w", err)
			}

			sinks = append(sinks, recorder)
		}

		d.publisher = events.NewPublisher(sinks...)
		d.onShutdown("event_publishers", func(context.Context) error {
			return d.publisher.Close()
		})

		return nil
	}
}

func WithDevicesService() DependencyOption {
	return func(d *dependencies) error {
		cbConfig := d.config.CircuitBreaker
		componentLogger := d.infra.logger.Component("circuit_breaker")

		breaker := circuitbreaker.New(
			circuitbreaker.Config{
				Name:             "postgres",
				Enabled:          cbConfig.Enabled,
				MaxRequests:      uint(cbConfig.MaxRequests),
				Interval:         cbConfig.Interval,
				Timeout:          cbConfig.Timeout,
				FailureThreshold: uint(cbConfig.FailureThreshold),
			},
			circuitbreaker.WithSuccessClassifier(func(err error) bool {
				return !services.IsStoreFailure(err)
			}),
			circuitbreaker.WithStateChangeHook(func(name string, from, to circuitbreaker.State) {
				componentLogger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state changed")
			}),
		)

		d.devicesService = services.NewDevicesService(
			d.repos.deviceRepo,
			d.infra.logger.Component("devices_service"),
			services.WithCircuitBreaker(breaker),
			services.WithEventPublisher(d.publisher),
		)

		return nil
	}
}

func WithApplication() DependencyOption {
	return func(d *dependencies) error {
		d.app = usecases.NewApplication(
			d.devicesService,
			d.checkers,
			d.infra.logger,
			d.infra.metricsClient,
			d.infra.tracerProvider,
		)

		return nil
	}
}

func WithPublicHTTPServer(ctx context.Context) DependencyOption {
	return func(d *dependencies) error {
		doc, err := openapi.Load(ctx)
		if err != nil {
			return fmt.Errorf("loading API document: %w", err)
		}

		routerConfig := inboundhttp.RouterConfig{
			App:            d.app,
			Logger:         d.infra.logger,
			MetricsClient:  d.infra.metricsClient,
			TracerProvider: d.infra.tracerProvider,
			Config:         d.config,
			OpenAPI:        doc,
		}

		// Interface fields stay nil when the cache is disabled.
		if d.infra.redisClient != nil {
			routerConfig.IdempotencyStore = d.repos.idempotencyRepo
			routerConfig.RateLimitStore = d.repos.rateLimitStore
		}

		router, err := inboundhttp.NewRouter(routerConfig)
		if err != nil {
			return fmt.Errorf("building router: %w", err)
		}

		cfg := d.config.PublicHTTPServer
		server := &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)),
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		}

		d.infra.publicHTTPServer = server
		d.onShutdown("public_http_server", shutdownHTTPServer(server))

		return nil
	}
}

func WithAdminHTTPServer() DependencyOption {
	return func(d *dependencies) error {
		cfg := d.config.AdminHTTPServer
		if !cfg.Enabled {
			return nil
		}

		server := &http.Server{
			Addr: net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)),
			Handler: inboundhttp.NewAdminRouter(inboundhttp.AdminRouterConfig{
				App:           d.app,
				MetricsClient: d.infra.metricsClient,
				Logger:        d.infra.logger,
			}),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		}

		d.infra.adminHTTPServer = server
		d.onShutdown("admin_http_server", shutdownHTTPServer(server))

		return nil
	}
}

// WithGRPCServer exposes grpc.health.v1 for infrastructure probes.
func WithGRPCServer() DependencyOption {
	return func(d *dependencies) error {
		cfg := d.config.GRPCServer
		if !cfg.Enabled {
			return nil
		}

		reporter := inboundgrpc.NewHealthReporter(d.repos.deviceRepo, d.config.App.ServiceName, d.infra.logger)
		server := inboundgrpc.NewServer(cfg, d.config.Logging.AccessLog, reporter, d.infra.logger, d.infra.tracerProvider)

		d.infra.healthReporter = reporter
		d.infra.grpcServer = server
		d.onShutdown("grpc_server", func(ctx context.Context) error {
			stopped := make(chan struct{})

			go func() {
				server.GracefulStop()
				close(stopped)
			}()

			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				server.Stop()

				return ctx.Err()
			}
		})

		return nil
	}
}

func shutdownHTTPServer(server *http.Server) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}
}
