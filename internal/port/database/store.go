// Package database defines the shared-store port (interface).
package database

import (
	"context"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/audit"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/tenant"
)

// Store is the port interface over the shared (cross-tenant) store.
// It is read-mostly from the gateway's point of view: membership and
// tenant state are queried on every request, audit records are appended.
type Store interface {
	// IsActiveMember reports whether userID currently holds an active
	// membership in tenantID AND the tenant itself is active.
	IsActiveMember(ctx context.Context, userID, tenantID string) (bool, error)

	// GetTenant returns a tenant by id. Missing tenants yield domain.ErrNotFound.
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)

	// GetMembership returns the membership row for (userID, tenantID).
	GetMembership(ctx context.Context, userID, tenantID string) (*tenant.Membership, error)

	// InsertAuditRecord appends a write-once audit record.
	InsertAuditRecord(ctx context.Context, rec *audit.Record) error

	// ListAuditRecords returns the most recent audit records for a tenant,
	// newest first, up to limit.
	ListAuditRecords(ctx context.Context, tenantID string, limit int) ([]audit.Record, error)
}
