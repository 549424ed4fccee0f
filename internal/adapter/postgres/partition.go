package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/tenantconn"
)

// PartitionConn is the tenant-exclusive connection handed to request
// handlers: a pgx pool whose search_path is pinned to the tenant's schema.
type PartitionConn struct {
	pool     *pgxpool.Pool
	tenantID string
}

// Pool returns the underlying tenant-scoped pool.
func (c *PartitionConn) Pool() *pgxpool.Pool { return c.pool }

// TenantID returns the tenant the pool is pinned to.
func (c *PartitionConn) TenantID() string { return c.tenantID }

// Close releases the tenant's pool.
func (c *PartitionConn) Close() { c.pool.Close() }

// PartitionDialer opens per-tenant connection pools. Each tenant's data
// lives in its own schema on the shared cluster; the dialer derives the
// schema from the tenant ID and pins the pool's search_path to it, so a
// handle can never read another tenant's rows.
type PartitionDialer struct {
	baseCfg *pgxpool.Config
	conns   config.TenantConns
}

// NewPartitionDialer creates a dialer from the shared-store DSN.
func NewPartitionDialer(pgCfg config.Postgres, conns config.TenantConns) (*PartitionDialer, error) {
	baseCfg, err := pgxpool.ParseConfig(pgCfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	return &PartitionDialer{baseCfg: baseCfg, conns: conns}, nil
}

// Dial opens a pool pinned to tenantID's schema. The caller owns the
// returned connection and closes it when the handle is evicted.
func (d *PartitionDialer) Dial(ctx context.Context, tenantID string) (tenantconn.Conn, error) {
	schema, err := schemaFor(tenantID)
	if err != nil {
		return nil, err
	}

	cfg := d.baseCfg.Copy()
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = d.conns.MaxConns
	cfg.MinConns = d.conns.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", tenantID, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping partition %s: %w", tenantID, err)
	}

	return &PartitionConn{pool: pool, tenantID: tenantID}, nil
}

// schemaFor maps a tenant ID to its schema name. IDs are UUIDs or slugs;
// anything outside [a-zA-Z0-9_-] is refused rather than escaped, since the
// schema name ends up in the connection's search_path.
func schemaFor(tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("schema for empty tenant id: %w", domain.ErrTenantAccessDenied)
	}
	var b strings.Builder
	b.WriteString("t_")
	for _, r := range tenantID {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r == '-':
			b.WriteByte('_')
		default:
			return "", fmt.Errorf("tenant id %q has no valid schema: %w", tenantID, domain.ErrTenantAccessDenied)
		}
	}
	return b.String(), nil
}
