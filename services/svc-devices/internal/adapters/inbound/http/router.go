package http

import (
	"fmt"
	"net/http"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/handlers"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/middleware"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/throttled/throttled/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	baseURL = "/v1"
)

type RouterConfig struct {
	App              *usecases.Application
	Logger           logger.Logger
	MetricsClient    metrics.Client
	TracerProvider   otelTrace.TracerProvider
	Config           *config.ServiceConfig
	OpenAPI          *openapi3.T
	IdempotencyStore ports.IdempotencyStore
	RateLimitStore   throttled.GCRAStoreCtx
}

// NewRouter builds the public API. Health probes live outside /v1 and skip
// request validation and idempotency handling.
func NewRouter(cfg RouterConfig) (http.Handler, error) {
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestTracking())
	router.Use(middleware.Recovery(cfg.Logger))
	router.Use(middleware.SecurityHeaders(cfg.Config.App.APIVersion))
	router.Use(middleware.CORS(cfg.Config.PublicHTTPServer.AllowedOrigins))

	if cfg.Config.Telemetry.Metrics.Enabled {
		router.Use(middleware.NewMetricsMiddleware(cfg.MetricsClient).Middleware)
		cfg.Logger.Info().Msg("HTTP metrics collection enabled")
	}

	if accessLog := cfg.Config.Logging.AccessLog; accessLog.Enabled {
		router.Use(middleware.NewHealthCheckFilter(accessLog.LogHealthChecks).Middleware)
		router.Use(middleware.AccessLogger(cfg.Logger, accessLog.IncludeQueryParams))
		cfg.Logger.Info().
			Bool("log_health_checks", accessLog.LogHealthChecks).
			Msg("structured access logging enabled")
	}

	if cfg.Config.ThrottledRateLimiting.Enabled {
		if cfg.RateLimitStore == nil {
			return nil, fmt.Errorf("rate limiting enabled without a store")
		}

		rateLimiter, err := middleware.ThrottledRateLimiting(cfg.Config.ThrottledRateLimiting, cfg.RateLimitStore, cfg.Logger)
		if err != nil {
			return nil, err
		}

		router.Use(rateLimiter)
		cfg.Logger.Info().
			Uint("requests_per_second", cfg.Config.ThrottledRateLimiting.RequestsPerSecond).
			Uint("burst_size", cfg.Config.ThrottledRateLimiting.BurstSize).
			Msg("rate limiting enabled")
	}

	router.Use(middleware.BodyLimit(cfg.Config.PublicHTTPServer.MaxBodyBytes))
	router.Use(middleware.Compression(cfg.Config.Compression))
	router.Use(middleware.ConditionalGET(middleware.NewETagGenerator()))

	healthHandler := handlers.NewHealthHandler(cfg.App)
	router.Get("/health", healthHandler.HealthCheck)
	router.Get("/health/live", healthHandler.LivenessCheck)
	router.Get("/health/ready", healthHandler.ReadinessCheck)

	requestValidator, err := middleware.RequestValidator(cfg.OpenAPI, cfg.Logger)
	if err != nil {
		return nil, err
	}

	deviceHandler := handlers.NewDeviceHandler(cfg.App, cfg.Logger)

	router.Route(baseURL, func(r chi.Router) {
		r.Use(requestValidator)

		if cfg.Config.Idempotency.Enabled && cfg.IdempotencyStore != nil {
			r.Use(middleware.Idempotency(cfg.IdempotencyStore, cfg.Config.Idempotency, cfg.Logger))
		}

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", deviceHandler.ListDevices)
			r.Post("/", deviceHandler.CreateDevice)
			r.Options("/", deviceHandler.OptionsDevices)
			r.Get("/brand", deviceHandler.ListDevicesByBrand)
			r.Get("/state", deviceHandler.ListDevicesByState)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", deviceHandler.GetDevice)
				r.Put("/", deviceHandler.UpdateDevice)
				r.Patch("/", deviceHandler.PatchDevice)
				r.Delete("/", deviceHandler.DeleteDevice)
				r.Options("/", deviceHandler.OptionsDevice)
			})
		})
	})

	if !cfg.Config.Telemetry.Traces.Enabled || cfg.TracerProvider == nil {
		return router, nil
	}

	cfg.Logger.Info().Msg("distributed tracing enabled")

	return otelhttp.NewHandler(router, cfg.Config.App.ServiceName,
		otelhttp.WithTracerProvider(cfg.TracerProvider),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	), nil
}
