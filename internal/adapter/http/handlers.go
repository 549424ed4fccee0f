package http

import (
	"context"
	"net/http"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/gate"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/port/database"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/service"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/tenantconn"
)

// Handlers holds the gateway's own endpoint handlers and their dependencies.
type Handlers struct {
	store  database.Store
	router *tenantconn.Router
	sink   *service.AuditSink
	pingDB func(ctx context.Context) error
}

// NewHandlers creates the handler set. pingDB may be nil (reported as "unknown").
func NewHandlers(store database.Store, router *tenantconn.Router, sink *service.AuditSink, pingDB func(ctx context.Context) error) *Handlers {
	return &Handlers{store: store, router: router, sink: sink, pingDB: pingDB}
}

// Health reports liveness and a dependency summary. Unauthenticated.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	db := "unknown"
	if h.pingDB != nil {
		if err := h.pingDB(r.Context()); err != nil {
			db = "down"
		} else {
			db = "up"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if db == "down" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status":         overall,
		"database":       db,
		"tenant_handles": h.router.Len(),
		"audit_dropped":  h.sink.DroppedCount(),
	})
}

// meView is the caller-visible projection of the request context.
type meView struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Me returns the authenticated caller's established context.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	rc := gate.FromContext(r.Context())
	if rc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeData(w, http.StatusOK, meView{
		UserID:   rc.UserID,
		TenantID: rc.TenantID,
		Role:     string(rc.Role),
	})
}

// ListAudit returns recent audit records for the caller's tenant.
// Mounted behind an owner/admin role gate.
func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	rc := gate.FromContext(r.Context())
	if rc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit > 500 {
		limit = 500
	}

	records, err := h.store.ListAuditRecords(r.Context(), rc.TenantID, limit)
	if err != nil {
		writeDomainError(w, err, "audit records not found")
		return
	}
	writeData(w, http.StatusOK, records)
}
