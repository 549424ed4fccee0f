// Package audit defines the append-only audit record model.
package audit

import "time"

// Outcome classifies how a request terminated.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRejected  Outcome = "rejected"
)

// Record captures a single completed or rejected operation.
// Records are write-once; this layer never updates or deletes them.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Outcome    Outcome   `json:"outcome"`
	Stage      string    `json:"stage,omitempty"` // admission stage that rejected, if any
	Timestamp  time.Time `json:"timestamp"`
}
