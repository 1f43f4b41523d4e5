package grpc

import (
	"context"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthReporter mirrors database reachability into the standard gRPC
// health service, both for the server as a whole and for serviceName.
type HealthReporter struct {
	server      *health.Server
	dbChecker   ports.DatabaseHealthChecker
	serviceName string
	logger      logger.Logger
	lastStatus  healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(dbChecker ports.DatabaseHealthChecker, serviceName string, log logger.Logger) *HealthReporter {
	return &HealthReporter{
		server:      health.NewServer(),
		dbChecker:   dbChecker,
		serviceName: serviceName,
		logger:      log.Component("grpc_health"),
		lastStatus:  healthpb.HealthCheckResponse_UNKNOWN,
	}
}

func (h *HealthReporter) Server() *health.Server {
	return h.server
}

// Probe pings the database once and publishes the resulting status.
func (h *HealthReporter) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.dbChecker.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING

		if h.lastStatus != status {
			h.logger.Warn().Err(err).Msg("database unreachable, reporting NOT_SERVING")
		}
	}

	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.serviceName, status)
	h.lastStatus = status

	return status
}

// Run probes every interval until ctx is done, then marks everything as
// NOT_SERVING so watchers see the shutdown.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Probe(ctx)

	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()

			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}
