package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ferri"

// StartAdmission starts a span covering the request admission pipeline.
func StartAdmission(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "admission")
}

// StartDial starts a span covering a tenant partition dial.
func StartDial(ctx context.Context, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tenant.dial",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
}
