package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	userIDHeader    = "x-user-id"
	requestIDHeader = "x-request-id"
)

// callerID returns the authenticated caller forwarded by the gateway, or "".
func callerID(ctx context.Context) string {
	return firstHeader(ctx, userIDHeader)
}

func firstHeader(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(key) {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned by RequestIDInterceptor, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
