package queries

import (
	"context"

	"github.com/architeacher/device-inventory/pkg/decorator"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/ports"
	otelTrace "go.opentelemetry.io/otel/trace"
)

type (
	FetchReadinessQuery struct{}

	ReadinessResult struct {
		Status string `json:"status"`
		Ready  bool   `json:"ready"`
	}

	FetchReadinessQueryHandler = decorator.QueryHandler[FetchReadinessQuery, *ReadinessResult]

	fetchReadinessQueryHandler struct {
		checkers []ports.DependencyChecker
	}
)

func NewFetchReadinessQueryHandler(
	checkers []ports.DependencyChecker,
	log logger.Logger,
	metricsClient metrics.Client,
	tracerProvider otelTrace.TracerProvider,
) FetchReadinessQueryHandler {
	return decorator.ApplyQueryDecorators[FetchReadinessQuery, *ReadinessResult](
		fetchReadinessQueryHandler{checkers: checkers},
		log,
		metricsClient,
		tracerProvider,
	)
}

// Execute reports ready only when every critical dependency answers.
func (h fetchReadinessQueryHandler) Execute(ctx context.Context, _ FetchReadinessQuery) (*ReadinessResult, error) {
	for _, checker := range h.checkers {
		if !checker.Critical() {
			continue
		}

		if err := checker.Check(ctx); err != nil {
			return &ReadinessResult{Status: StatusUnavailable, Ready: false}, nil
		}
	}

	return &ReadinessResult{Status: StatusOK, Ready: true}, nil
}
