// Package ctxutil carries request-scoped values through context.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// TraceIDKey is the context and log field key for trace identifiers.
const TraceIDKey = "trace_id"

const (
	traceIDKey contextKey = TraceIDKey
	userIDKey  contextKey = "user_id"
	roleKey    contextKey = "user_role"
)

// GetTraceID retrieves the trace ID from context, empty when absent.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// SetTraceID stores a trace ID in the context.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// EnsureTraceID returns the context's trace ID, generating one if missing.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id := GetTraceID(ctx); id != "" {
		return ctx, id
	}
	id := uuid.New().String()
	return SetTraceID(ctx, id), id
}

// GetUserID retrieves the authenticated user ID from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// SetUserID stores the authenticated user ID in the context.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserRole retrieves the authenticated user role from context.
func GetUserRole(ctx context.Context) string {
	if v, ok := ctx.Value(roleKey).(string); ok {
		return v
	}
	return ""
}

// SetUserRole stores the authenticated user role in the context.
func SetUserRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}
