package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	tenantIDKey
)

// WithRequestID stores the request correlation id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request correlation id, or "" when absent.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithTenant stores the authenticated tenant id in ctx once admission has
// established it, so records logged with this context carry the tenant
// they concern.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// Tenant returns the authenticated tenant id, or "" before admission.
func Tenant(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDKey).(string)
	return id
}

// ContextAttrs returns the correlation attributes present in ctx. The
// async handler stamps these onto every record it defers, so a log line
// written off the request path still names the request and tenant that
// produced it.
func ContextAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id := Tenant(ctx); id != "" {
		attrs = append(attrs, slog.String("tenant_id", id))
	}
	return attrs
}
