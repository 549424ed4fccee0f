package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/tenant"
)

// IsActiveMember reports whether the user currently holds an active
// membership in the tenant AND the tenant itself is active. Both checks
// run in one query so a suspended tenant denies all of its members at once.
func (s *Store) IsActiveMember(ctx context.Context, userID, tenantID string) (bool, error) {
	var active bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM memberships m
		   JOIN tenants t ON t.id = m.tenant_id
		   WHERE m.user_id = $1 AND m.tenant_id = $2
		     AND m.active AND t.active
		 )`, userID, tenantID,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check membership %s/%s: %w", userID, tenantID, err)
	}
	return active, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, slug, active, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) GetMembership(ctx context.Context, userID, tenantID string) (*tenant.Membership, error) {
	var m tenant.Membership
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, tenant_id, active, created_at, updated_at
		 FROM memberships WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID,
	).Scan(&m.UserID, &m.TenantID, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get membership %s/%s: %w", userID, tenantID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get membership %s/%s: %w", userID, tenantID, err)
	}
	return &m, nil
}
