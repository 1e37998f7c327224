package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxAdminID  contextKey = "admin_id"
	ctxUsername contextKey = "admin_username"
	ctxAccessID contextKey = "access_id"
)

// AdminIDFromContext returns the authenticated admin, if any.
func AdminIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxAdminID).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func UsernameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUsername).(string); ok {
		return v
	}
	return ""
}

// AccessIDFromContext returns the session id (jti) of the current token.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// WithAdmin injects the admin identity into the context.
func WithAdmin(ctx context.Context, adminID uuid.UUID, username, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxAdminID, adminID)
	ctx = context.WithValue(ctx, ctxUsername, username)
	return context.WithValue(ctx, ctxAccessID, accessID)
}
