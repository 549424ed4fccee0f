package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/identity"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/middleware"
)

// Chain groups the admission middleware applied to the protected surface,
// in mounting order: audit recording wraps everything so rejections are
// recorded too, rate limiting rejects cheaply before verification, and
// Protect runs the sequential admission pipeline.
type Chain struct {
	Audit     func(http.Handler) http.Handler
	RateLimit func(http.Handler) http.Handler
	Protect   func(http.Handler) http.Handler
}

// NewRouter assembles the gateway's router: ambient middleware, the public
// health endpoint, and the protected /api/v1 surface. features, when
// non-nil, is invoked with the protected subrouter so resource feature
// packages can Mount themselves under the admission chain.
func NewRouter(cfg config.Server, h *Handlers, chain Chain, telemetry func(http.Handler) http.Handler, features func(chi.Router)) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigin))
	if telemetry != nil {
		r.Use(telemetry)
	}
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(chain.Audit)
		api.Use(chain.RateLimit)
		api.Use(chain.Protect)

		api.Get("/me", h.Me)
		api.With(middleware.RequireRole(identity.RoleOwner, identity.RoleAdmin)).
			Get("/audit", h.ListAudit)

		if features != nil {
			features(api)
		}
	})

	return r
}

// Mount attaches a resource feature package under the protected surface
// with its own role allow-list. An empty roles list admits any
// authenticated member of the tenant.
func Mount(r chi.Router, pattern string, feature http.Handler, roles ...identity.Role) {
	if len(roles) == 0 {
		r.Mount(pattern, feature)
		return
	}
	r.With(middleware.RequireRole(roles...)).Mount(pattern, feature)
}
