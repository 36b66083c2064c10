// Package requestctx carries per-call identity through context: the signed-in
// user a dashboard view is scoped to, and a caller-chosen request id that the
// transport sends instead of generating one.
package requestctx

import (
	"context"
	"strings"
)

type userIDKey struct{}

type requestIDKey struct{}

// WithUserID stores the signed-in user identifier in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey{}, strings.TrimSpace(userID))
}

// UserID returns the user stored in ctx, or "".
func UserID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(userIDKey{}).(string)
	return v
}

// UserIDOr returns explicit when it is set and the user stored in ctx
// otherwise.
func UserIDOr(ctx context.Context, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return UserID(ctx)
}

// WithRequestID pins the X-Request-ID of calls made with ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

// RequestID returns the pinned request id, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}
