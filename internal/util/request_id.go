package util

import (
	"context"
	"strings"
)

type requestIDContextKey string

const (
	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-Id"
	requestIDCtxKey = requestIDContextKey("request_id")
)

// ContextWithRequestID pins the id sent with every request made under ctx.
// Callers normally leave it unset and let the client generate one.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, strings.TrimSpace(id))
}

// RequestIDFromContext returns the pinned id or generates a new one.
func RequestIDFromContext(ctx context.Context) string {
	if ctx != nil {
		if id, _ := ctx.Value(requestIDCtxKey).(string); id != "" {
			return id
		}
	}
	return NewID()
}
