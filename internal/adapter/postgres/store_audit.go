package postgres

import (
	"context"
	"fmt"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/audit"
)

// InsertAuditRecord appends one write-once audit record. There is no
// update or delete counterpart on purpose.
func (s *Store) InsertAuditRecord(ctx context.Context, rec *audit.Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_records (id, user_id, tenant_id, method, path, status_code, outcome, stage, recorded_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		rec.ID, rec.UserID, rec.TenantID, rec.Method, rec.Path, rec.StatusCode,
		string(rec.Outcome), rec.Stage, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit record %s: %w", rec.ID, err)
	}
	return nil
}

// ListAuditRecords returns the most recent audit records for a tenant,
// newest first, up to limit.
func (s *Store) ListAuditRecords(ctx context.Context, tenantID string, limit int) ([]audit.Record, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(user_id, ''), COALESCE(tenant_id, ''), method, path, status_code, outcome, COALESCE(stage, ''), recorded_at
		 FROM audit_records WHERE tenant_id = $1
		 ORDER BY recorded_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		var rec audit.Record
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TenantID, &rec.Method, &rec.Path,
			&rec.StatusCode, &outcome, &rec.Stage, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Outcome = audit.Outcome(outcome)
		records = append(records, rec)
	}
	return records, rows.Err()
}
