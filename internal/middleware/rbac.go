package middleware

import (
	"net/http"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/identity"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/gate"
)

// RequireRole returns middleware that restricts a route to callers holding
// one of the given roles within their tenant. It must run inside Protect:
// the role comes from the established request context, never from the raw
// token.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := gate.FromContext(r.Context())
			if rc == nil {
				writeRejection(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !gate.AllowRole(roles, rc.Role) {
				ObserveIdentity(r.Context(), rc.UserID, rc.TenantID, string(gate.StageRole))
				writeRejection(w, http.StatusForbidden, "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
