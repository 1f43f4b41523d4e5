package http

import (
	"net/http"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/handlers"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/middleware"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/usecases"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AdminRouterConfig holds dependencies for the admin router.
type AdminRouterConfig struct {
	App           *usecases.Application
	MetricsClient metrics.Client
	Logger        logger.Logger
}

// NewAdminRouter serves the metrics snapshot and health probes. It is meant
// for an internal port only.
func NewAdminRouter(cfg AdminRouterConfig) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Recovery(cfg.Logger))

	healthHandler := handlers.NewHealthHandler(cfg.App)

	router.Handle("/metrics", cfg.MetricsClient.Handler())
	router.Get("/health", healthHandler.HealthCheck)
	router.Get("/health/live", healthHandler.LivenessCheck)
	router.Get("/health/ready", healthHandler.ReadinessCheck)

	return router
}
