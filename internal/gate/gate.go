// Package gate implements the request admission pipeline: the strictly
// sequential chain of checks every protected request passes before a
// handler runs. Any failing stage short-circuits to a rejection carrying
// the stage and error kind; no partial context ever reaches a handler.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/otel"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/identity"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/service"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/tenantconn"
)

// Stage identifies the admission stage a request last reached.
type Stage string

const (
	StageRate       Stage = "rate_checked"
	StageCredential Stage = "credential_verified"
	StageTenant     Stage = "tenant_validated"
	StageConnection Stage = "connection_routed"
	StageRole       Stage = "role_checked"
	StageCompleted  Stage = "completed"
)

// Rejection is the terminal state of a request that failed admission.
type Rejection struct {
	Stage  Stage
	Err    error
	Claims *identity.Claims // partial identity when known, for auditing
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingCredential),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrTenantAccessDenied),
		errors.Is(err, domain.ErrInsufficientRole):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTenantUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Status returns the HTTP status for the rejection.
func (r *Rejection) Status() int { return StatusFor(r.Err) }

// Message returns the generic client-facing message for the rejection.
// Authentication and authorization messages deliberately do not reveal
// which check failed.
func (r *Rejection) Message() string {
	switch r.Status() {
	case http.StatusUnauthorized:
		return "authentication required"
	case http.StatusForbidden:
		return "access denied"
	case http.StatusTooManyRequests:
		return "rate limit exceeded"
	case http.StatusServiceUnavailable:
		return "tenant temporarily unavailable"
	default:
		return "internal server error"
	}
}

// Pipeline runs the admission chain for protected requests:
// credential verification, live membership validation, connection routing.
// Rate limiting runs ahead of the pipeline (cheap rejection first) and
// role checks run per route once the context is established.
type Pipeline struct {
	verifier *service.Verifier
	members  *service.MembershipRegistry
	router   *tenantconn.Router
	metrics  *otel.Metrics
	log      *slog.Logger
}

// NewPipeline creates a Pipeline. metrics may be nil.
func NewPipeline(v *service.Verifier, m *service.MembershipRegistry, r *tenantconn.Router, metrics *otel.Metrics, log *slog.Logger) *Pipeline {
	return &Pipeline{verifier: v, members: m, router: r, metrics: metrics, log: log}
}

// Admit runs the sequential admission stages for one request. On success
// the returned RequestContext holds an acquired connection handle that the
// caller must Release when the request completes. On failure the handle is
// never acquired and the rejection names the failing stage.
func (p *Pipeline) Admit(ctx context.Context, rawToken string) (*RequestContext, *Rejection) {
	ctx, span := otel.StartAdmission(ctx)
	defer span.End()
	start := time.Now()

	claims, err := p.verifier.Verify(rawToken)
	if err != nil {
		p.metrics.AddAuthnFailure(ctx)
		p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageCredential))
		return nil, &Rejection{Stage: StageCredential, Err: err}
	}

	// The tenant claim is a hint, never an authorization: membership is
	// re-confirmed against live state on every request.
	if claims.TenantID == "" {
		p.metrics.AddAccessDenied(ctx)
		p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageTenant))
		return nil, &Rejection{Stage: StageTenant, Err: domain.ErrTenantAccessDenied, Claims: claims}
	}

	active, err := p.members.IsActiveMember(ctx, claims.UserID, claims.TenantID)
	if err != nil {
		p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageTenant))
		return nil, &Rejection{Stage: StageTenant, Err: err, Claims: claims}
	}
	if !active {
		p.metrics.AddAccessDenied(ctx)
		p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageTenant))
		return nil, &Rejection{Stage: StageTenant, Err: domain.ErrTenantAccessDenied, Claims: claims}
	}

	handle, err := p.router.Route(ctx, claims.TenantID)
	if err != nil {
		p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageConnection))
		return nil, &Rejection{Stage: StageConnection, Err: err, Claims: claims}
	}

	// The map key is the sole source of truth; a handle stamped with a
	// different tenant must never be attached to this request.
	if handle.TenantID() != claims.TenantID {
		handle.Release()
		p.log.Error("tenant handle mismatch", "want", claims.TenantID, "got", handle.TenantID())
		p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageConnection))
		return nil, &Rejection{Stage: StageConnection, Err: domain.ErrTenantUnavailable, Claims: claims}
	}

	p.metrics.RecordAdmission(ctx, time.Since(start).Seconds(), string(StageCompleted))

	return &RequestContext{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Role:     claims.Role,
		Conn:     handle,
	}, nil
}

// AllowRole is the RoleGate predicate: pure set membership of the actual
// role in the route's allow-list. An absent role is always denied for a
// non-empty allow-list; an empty allow-list admits any authenticated caller.
func AllowRole(required []identity.Role, actual identity.Role) bool {
	if len(required) == 0 {
		return true
	}
	if actual == "" {
		return false
	}
	for _, r := range required {
		if r == actual {
			return true
		}
	}
	return false
}
