package decorator

import (
	"context"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/pkg/metrics"
	otelTrace "go.opentelemetry.io/otel/trace"
)

type (
	Query any

	// QueryHandler answers a read without changing state. Readiness probes
	// and device lookups share this shape.
	QueryHandler[Q Query, R any] interface {
		Execute(ctx context.Context, query Q) (R, error)
	}

	QueryHandlerFunc[Q Query, R any] func(context.Context, Q) (R, error)
)

func (f QueryHandlerFunc[Q, R]) Execute(ctx context.Context, query Q) (R, error) {
	return f(ctx, query)
}

// ApplyQueryDecorators gives reads the same logging, metrics and tracing
// chain as ApplyCommandDecorators. Metric keys are prefixed with "queries.".
func ApplyQueryDecorators[Q Query, R any](
	handler QueryHandler[Q, R],
	log logger.Logger,
	metricsClient metrics.Client,
	tracerProvider otelTrace.TracerProvider,
) QueryHandler[Q, R] {
	traced := queryTracingDecorator[Q, R]{base: handler, tracerProvider: tracerProvider}
	measured := queryMetricsDecorator[Q, R]{base: traced, client: metricsClient}

	return queryLoggingDecorator[Q, R]{base: measured, logger: log}
}
