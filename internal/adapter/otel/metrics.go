package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ferri"

// Metrics holds the gateway's metric instruments. A nil *Metrics is valid
// and records nothing, so instrumented components never need nil checks at
// call sites beyond passing the pointer through.
type Metrics struct {
	authnFailures metric.Int64Counter
	accessDenied  metric.Int64Counter
	rateLimited   metric.Int64Counter
	tenantDials   metric.Int64Counter
	dialFailures  metric.Int64Counter
	activeHandles metric.Int64UpDownCounter
	admission     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.authnFailures, err = meter.Int64Counter("ferri.authn.failures",
		metric.WithDescription("Requests rejected during credential verification"))
	if err != nil {
		return nil, err
	}

	m.accessDenied, err = meter.Int64Counter("ferri.authz.denied",
		metric.WithDescription("Requests rejected by tenant or role checks"))
	if err != nil {
		return nil, err
	}

	m.rateLimited, err = meter.Int64Counter("ferri.ratelimit.rejected",
		metric.WithDescription("Requests rejected by the rate limiter"))
	if err != nil {
		return nil, err
	}

	m.tenantDials, err = meter.Int64Counter("ferri.tenant.dials",
		metric.WithDescription("Tenant partition dial attempts"))
	if err != nil {
		return nil, err
	}

	m.dialFailures, err = meter.Int64Counter("ferri.tenant.dial_failures",
		metric.WithDescription("Tenant partition dial failures"))
	if err != nil {
		return nil, err
	}

	m.activeHandles, err = meter.Int64UpDownCounter("ferri.tenant.active_handles",
		metric.WithDescription("Cached tenant connection handles"))
	if err != nil {
		return nil, err
	}

	m.admission, err = meter.Float64Histogram("ferri.admission.duration_seconds",
		metric.WithDescription("Request admission pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// AddAuthnFailure counts a credential verification failure.
func (m *Metrics) AddAuthnFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.authnFailures.Add(ctx, 1)
}

// AddAccessDenied counts a tenant or role denial.
func (m *Metrics) AddAccessDenied(ctx context.Context) {
	if m == nil {
		return
	}
	m.accessDenied.Add(ctx, 1)
}

// AddRateLimited counts a rate-limiter rejection.
func (m *Metrics) AddRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1)
}

// AddTenantDial counts a partition dial attempt.
func (m *Metrics) AddTenantDial(ctx context.Context) {
	if m == nil {
		return
	}
	m.tenantDials.Add(ctx, 1)
}

// AddDialFailure counts a partition dial failure.
func (m *Metrics) AddDialFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.dialFailures.Add(ctx, 1)
}

// AddActiveHandles adjusts the cached-handle gauge.
func (m *Metrics) AddActiveHandles(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.activeHandles.Add(ctx, delta)
}

// RecordAdmission records the admission pipeline duration for one request.
func (m *Metrics) RecordAdmission(ctx context.Context, seconds float64, stage string) {
	if m == nil {
		return
	}
	m.admission.Record(ctx, seconds, metric.WithAttributes(attribute.String("stage", stage)))
}
