package telemetry

import (
	"context"

	"github.com/google/uuid"
)

const RequestIDHeader = "x-request-id"

type requestContextKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestContextKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	requestID, ok := ctx.Value(requestContextKey{}).(string)
	return requestID, ok && requestID != ""
}

func NewRequestID() string {
	return uuid.NewString()
}
