package middleware

import (
	"net/http"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/gate"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/logger"
)

// Protect returns the admission middleware for the protected surface. It
// runs the sequential pipeline (credential verification, live membership
// validation, connection routing) and either rejects with the generic
// envelope for the failing stage or attaches the established request
// context and tenant handle for downstream handlers. The handle is
// released when the handler returns.
func Protect(pipeline *gate.Pipeline) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc, rej := pipeline.Admit(r.Context(), bearerToken(r))
			if rej != nil {
				userID, tenantID := "", ""
				if rej.Claims != nil {
					userID, tenantID = rej.Claims.UserID, rej.Claims.TenantID
				}
				ObserveIdentity(r.Context(), userID, tenantID, string(rej.Stage))
				writeRejection(w, rej.Status(), rej.Message())
				return
			}
			defer rc.Conn.Release()

			ObserveIdentity(r.Context(), rc.UserID, rc.TenantID, string(gate.StageCompleted))
			ctx := logger.WithTenant(r.Context(), rc.TenantID)
			next.ServeHTTP(w, r.WithContext(gate.WithRequestContext(ctx, rc)))
		})
	}
}
