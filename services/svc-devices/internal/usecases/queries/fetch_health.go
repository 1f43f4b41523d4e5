package queries

import (
	"context"
	"fmt"
	"time"

	"github.com/architeacher/device-inventory/pkg/decorator"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const (
	StatusOK          = "ok"
	StatusUnavailable = "unavailable"
	StatusHealthy     = "healthy"
	StatusDegraded    = "degraded"
	StatusUnhealthy   = "unhealthy"
)

type (
	FetchHealthReportQuery struct{}

	HealthResult struct {
		Status       string                            `json:"status"`
		Version      string                            `json:"version"`
		Uptime       string                            `json:"uptime"`
		Dependencies map[string]ports.DependencyStatus `json:"dependencies"`
	}

	FetchHealthReportQueryHandler = decorator.QueryHandler[FetchHealthReportQuery, *HealthResult]

	fetchHealthReportQueryHandler struct {
		checkers  []ports.DependencyChecker
		startTime time.Time
	}
)

func NewFetchHealthReportQueryHandler(
	checkers []ports.DependencyChecker,
	log logger.Logger,
	metricsClient metrics.Client,
	tracerProvider otelTrace.TracerProvider,
) FetchHealthReportQueryHandler {
	return decorator.ApplyQueryDecorators[FetchHealthReportQuery, *HealthResult](
		fetchHealthReportQueryHandler{
			checkers:  checkers,
			startTime: time.Now(),
		},
		log,
		metricsClient,
		tracerProvider,
	)
}

// Execute probes every dependency. A failing critical dependency makes the
// service unhealthy, any other failure only degrades it.
func (h fetchHealthReportQueryHandler) Execute(ctx context.Context, _ FetchHealthReportQuery) (*HealthResult, error) {
	dependencies := make(map[string]ports.DependencyStatus, len(h.checkers))
	status := StatusHealthy

	for _, checker := range h.checkers {
		start := time.Now()
		err := checker.Check(ctx)

		dependency := ports.DependencyStatus{
			Healthy: err == nil,
			Latency: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		}

		if err != nil {
			dependency.Message = err.Error()

			switch {
			case checker.Critical():
				status = StatusUnhealthy
			case status == StatusHealthy:
				status = StatusDegraded
			}
		}

		dependencies[checker.Name()] = dependency
	}

	return &HealthResult{
		Status:       status,
		Version:      config.ServiceVersion,
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
		Dependencies: dependencies,
	}, nil
}
