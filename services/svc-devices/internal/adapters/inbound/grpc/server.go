package grpc

import (
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer builds the gRPC server exposing grpc.health.v1 and, when
// enabled, server reflection.
func NewServer(
	cfg config.GRPCServer,
	accessLog config.AccessLog,
	reporter *HealthReporter,
	log logger.Logger,
	tracerProvider trace.TracerProvider,
) *grpc.Server {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(tracerProvider))),
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(log),
			ContextExtractorInterceptor(),
			AccessLogInterceptor(log, accessLog),
		),
	)

	healthpb.RegisterHealthServer(server, reporter.Server())

	if cfg.Reflection {
		reflection.Register(server)
	}

	return server
}
