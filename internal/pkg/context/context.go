package context

import (
	"context"
)

type key int

const (
	requestIDKey key = iota
	userIDKey
	sweepIDKey
)

func WithRequestID(ctx context.Context, reqID string) context.Context {
	return context.WithValue(ctx, requestIDKey, reqID)
}

func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(requestIDKey).(string); ok {
		return val
	}
	return ""
}

// WithUserID records the chat user driving the current operation.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(userIDKey).(string); ok {
		return val
	}
	return ""
}

func WithSweepID(ctx context.Context, sweepID string) context.Context {
	return context.WithValue(ctx, sweepIDKey, sweepID)
}

func GetSweepID(ctx context.Context) string {
	if val, ok := ctx.Value(sweepIDKey).(string); ok {
		return val
	}
	return ""
}
