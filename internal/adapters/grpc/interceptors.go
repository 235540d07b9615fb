package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs one line per unary call in the service log format.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		outcome := "success"
		level := slog.LevelInfo
		if err != nil {
			outcome = "failure"
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc request completed",
			"service", "burgerverse-auth",
			"module", "grpc",
			"layer", "adapter",
			"operation", info.FullMethod,
			"outcome", outcome,
			"grpc_code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
