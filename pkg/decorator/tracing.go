package decorator

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/architeacher/device-inventory/pkg/decorator"

type (
	commandTracingDecorator[C Command, R any] struct {
		base           CommandHandler[C, R]
		tracerProvider otelTrace.TracerProvider
	}

	queryTracingDecorator[Q Query, R any] struct {
		base           QueryHandler[Q, R]
		tracerProvider otelTrace.TracerProvider
	}
)

func (d commandTracingDecorator[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	if d.tracerProvider == nil {
		return d.base.Handle(ctx, cmd)
	}

	ctx, span := d.tracerProvider.Tracer(tracerName).Start(ctx, "command."+generateActionName(cmd))
	defer span.End()

	result, err := d.base.Handle(ctx, cmd)
	markSpan(span, err)

	return result, err
}

func (d queryTracingDecorator[Q, R]) Execute(ctx context.Context, query Q) (R, error) {
	if d.tracerProvider == nil {
		return d.base.Execute(ctx, query)
	}

	ctx, span := d.tracerProvider.Tracer(tracerName).Start(ctx, "query."+generateActionName(query))
	defer span.End()

	result, err := d.base.Execute(ctx, query)
	markSpan(span, err)

	return result, err
}

func markSpan(span otelTrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return
	}

	span.SetStatus(codes.Ok, "")
}
