package grpc

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	MetadataKeyRequestID     = "x-request-id"
	MetadataKeyCorrelationID = "x-correlation-id"

	healthServicePrefix = "/grpc.health.v1.Health/"
)

// ContextExtractorInterceptor copies request and correlation ids from the
// incoming metadata into the context, generating a request id when absent.
func ContextExtractorInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		var requestID string

		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if requestIDs := md.Get(MetadataKeyRequestID); len(requestIDs) > 0 {
				requestID = requestIDs[0]
			}

			if correlationIDs := md.Get(MetadataKeyCorrelationID); len(correlationIDs) > 0 {
				ctx = logger.ContextWithCorrelationID(ctx, correlationIDs[0])
			}
		}

		if requestID == "" {
			requestID = uuid.NewString()
		}

		return handler(logger.ContextWithRequestID(ctx, requestID), req)
	}
}

func AccessLogInterceptor(log logger.Logger, cfg config.AccessLog) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !cfg.Enabled || (!cfg.LogHealthChecks && isHealthCheck(info.FullMethod)) {
			return handler(ctx, req)
		}

		start := time.Now()
		resp, err := handler(ctx, req)

		reqLogger := log.WithContext(ctx)
		logEvent := reqLogger.Info().
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start))

		if cfg.IncludeMetadata {
			if md, ok := metadata.FromIncomingContext(ctx); ok {
				logEvent = logEvent.Any("metadata", sanitizeMetadata(md))
			}
		}

		if err != nil {
			st, _ := status.FromError(err)
			logEvent.Str("grpc_code", st.Code().String()).
				Str("error", st.Message()).
				Msg("gRPC request failed")
		} else {
			logEvent.Msg("gRPC request completed")
		}

		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				reqLogger := log.WithContext(ctx)
				reqLogger.Error().
					Interface("panic", recovered).
					Str("method", info.FullMethod).
					Bytes("stack", debug.Stack()).
					Msg("gRPC handler panicked")

				err = status.Error(codes.Internal, "internal error")
			}
		}()

		return handler(ctx, req)
	}
}

func isHealthCheck(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, healthServicePrefix)
}

func sanitizeMetadata(md metadata.MD) map[string]string {
	sanitized := make(map[string]string, len(md))
	sensitiveKeys := map[string]struct{}{
		"authorization": {},
		"api-key":       {},
		"cookie":        {},
	}

	for key, values := range md {
		if _, sensitive := sensitiveKeys[strings.ToLower(key)]; sensitive {
			sanitized[key] = "[REDACTED]"

			continue
		}

		if len(values) > 0 {
			sanitized[key] = values[0]
		}
	}

	return sanitized
}
