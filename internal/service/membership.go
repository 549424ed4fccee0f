package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/port/cache"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/port/database"
)

// MembershipRegistry answers whether a user is currently an active member
// of a tenant, against live state. The token's tenant claim is only a
// hint: a membership revoked mid-session locks the user out on their very
// next request.
//
// Lookups are always fresh by default. A positive-result cache can be
// enabled with a short TTL as an explicit optimization; denials are never
// cached, so a revocation takes effect immediately and a reinstatement is
// visible within one TTL.
type MembershipRegistry struct {
	store   database.Store
	cache   cache.Cache // nil when caching is disabled
	ttl     time.Duration
	timeout time.Duration
	log     *slog.Logger
}

// NewMembershipRegistry creates a registry. c may be nil; it is only used
// when cfg.CacheTTL is positive.
func NewMembershipRegistry(store database.Store, c cache.Cache, cfg config.Membership, log *slog.Logger) *MembershipRegistry {
	r := &MembershipRegistry{
		store:   store,
		ttl:     cfg.CacheTTL,
		timeout: cfg.LookupTimeout,
		log:     log,
	}
	if cfg.CacheTTL > 0 {
		r.cache = c
	}
	return r
}

// IsActiveMember reports whether the membership row and the tenant row are
// both active. Store failures and timeouts surface as ErrTenantUnavailable
// so the caller can distinguish "denied" from "could not check".
func (r *MembershipRegistry) IsActiveMember(ctx context.Context, userID, tenantID string) (bool, error) {
	if userID == "" || tenantID == "" {
		return false, nil
	}

	key := "member:" + userID + ":" + tenantID
	if r.cache != nil {
		if _, ok, _ := r.cache.Get(ctx, key); ok {
			return true, nil
		}
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	active, err := r.store.IsActiveMember(lctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return false, fmt.Errorf("membership lookup timed out: %w", domain.ErrTenantUnavailable)
		}
		r.log.Error("membership lookup failed", "user_id", userID, "tenant_id", tenantID, "error", err)
		return false, fmt.Errorf("membership lookup: %w", domain.ErrTenantUnavailable)
	}

	if active && r.cache != nil {
		_ = r.cache.Set(ctx, key, []byte{1}, r.ttl)
	}

	return active, nil
}

// Invalidate drops a cached positive decision, for callers that learn of a
// revocation out of band.
func (r *MembershipRegistry) Invalidate(ctx context.Context, userID, tenantID string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, "member:"+userID+":"+tenantID)
}
