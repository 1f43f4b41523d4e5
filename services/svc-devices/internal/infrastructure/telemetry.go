package infrastructure

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	exporterTypeGRPC   = "grpc"
	exporterTypeStdOut = "stdout"
)

type ShutdownFunc func(ctx context.Context) error

// NewTracerProvider builds an SDK tracer provider and installs it globally
// together with the W3C trace-context propagator.
func NewTracerProvider(ctx context.Context, appConfig config.App, telemetryConfig config.Telemetry) (trace.TracerProvider, ShutdownFunc, error) {
	exporter, err := createExporter(ctx, telemetryConfig, os.Stdout)
	if err != nil {
		return nil, nil, err
	}

	hostName, err := os.Hostname()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get host name: %w", err)
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(appConfig.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("env", appConfig.Env.Name),
			attribute.String("host", hostName),
			attribute.String("commit_sha", config.CommitSHA),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(telemetryConfig.Traces.SamplerRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, tp.Shutdown, nil
}

func NewNoopTracerProvider() trace.TracerProvider {
	return noop.NewTracerProvider()
}

func createExporter(ctx context.Context, cfg config.Telemetry, stdout io.Writer) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.ExporterType) {
	case exporterTypeGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}

		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
		}

		return exporter, nil

	case exporterTypeStdOut:
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
		}

		return exporter, nil

	default:
		return nil, fmt.Errorf("unsupported exporter type %q", cfg.ExporterType)
	}
}
