package gate

import (
	"context"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/identity"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/tenantconn"
)

// RequestContext is the per-request value object carrying the verified
// identity, tenant and routed connection to downstream handlers. It is
// constructed once per request, only after every admission stage passed,
// and is the sole channel through which handlers learn which tenant they
// operate on: deriving tenant identity from a request body or query
// parameter would be spoofable.
type RequestContext struct {
	UserID   string
	TenantID string
	Role     identity.Role
	Conn     *tenantconn.Handle
}

type requestCtxKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, rc)
}

// FromContext returns the RequestContext, or nil when the request never
// passed admission.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestCtxKey{}).(*RequestContext)
	return rc
}
