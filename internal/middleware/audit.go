package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/audit"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/service"
)

// auditInfo is the per-request scratch record the inner admission stages
// fill in as they learn the caller's identity and how far the request got.
// It is written and read on the request goroutine only.
type auditInfo struct {
	userID   string
	tenantID string
	stage    string
}

type auditInfoKey struct{}

// ObserveIdentity lets an inner stage attach the identity it established
// (or the stage at which it rejected) to the request's audit record.
func ObserveIdentity(ctx context.Context, userID, tenantID, stage string) {
	info, _ := ctx.Value(auditInfoKey{}).(*auditInfo)
	if info == nil {
		return
	}
	if userID != "" {
		info.userID = userID
	}
	if tenantID != "" {
		info.tenantID = tenantID
	}
	if stage != "" {
		info.stage = stage
	}
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Audit returns the outermost recording middleware: every request that
// reaches the protected surface produces exactly one audit record, whether
// it completed or was rejected at any admission stage. Recording is
// asynchronous and never delays the response.
func Audit(sink *service.AuditSink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := &auditInfo{}
			ctx := context.WithValue(r.Context(), auditInfoKey{}, info)
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			outcome := audit.OutcomeCompleted
			if status >= 400 {
				outcome = audit.OutcomeRejected
			}

			sink.Record(&audit.Record{
				ID:         uuid.NewString(),
				UserID:     info.userID,
				TenantID:   info.tenantID,
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: status,
				Outcome:    outcome,
				Stage:      info.stage,
				Timestamp:  time.Now().UTC(),
			})
		})
	}
}
