// Package middleware provides HTTP middleware for the ferri gateway.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestID is HTTP middleware that establishes the request correlation
// id. An inbound X-Request-ID is honored so callers can trace a request
// across the gateway into their own systems, but it is unauthenticated
// input that ends up in audit records and logs: anything overlong or
// outside [A-Za-z0-9._-] is replaced with a fresh id rather than
// propagated. The id is stored in the context and echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch c := id[i]; {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
