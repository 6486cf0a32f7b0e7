package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDInterceptor keeps the caller's x-request-id or mints one, and echoes it in
// the response header.
func RequestIDInterceptor() grpclib.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		id := firstHeader(ctx, requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		// Fails only outside a real server stream (direct calls in tests).
		_ = grpclib.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))
		return handler(withRequestID(ctx, id), req)
	}
}

func DefaultTimeoutInterceptor(timeout time.Duration) grpclib.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RateLimitInterceptor limits calls per caller identity. Calls without an identity are
// passed through; the handlers reject them. When the limiter itself fails the call is
// let through only if failOpen is set.
func RateLimitInterceptor(l Limiter, failOpen bool, log *slog.Logger) grpclib.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.ratelimit"))

	return func(ctx context.Context, req any, info *grpclib.UnaryServerInfo, handler grpclib.UnaryHandler) (any, error) {
		key := callerID(ctx)
		if key == "" {
			return handler(ctx, req)
		}

		ok, err := l.Allow(ctx, key)
		if err != nil {
			if failOpen {
				log.Warn("rate limiter unavailable; allowing", slog.Any("err", err), slog.String("method", info.FullMethod))
				return handler(ctx, req)
			}
			log.Error("rate limiter unavailable; rejecting", slog.Any("err", err), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.Unavailable, "service temporarily unavailable")
		}
		if !ok {
			log.Info("rate limited", slog.String("user_id", key), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "Too many requests. Slow down and try again shortly.")
		}
		return handler(ctx, req)
	}
}
