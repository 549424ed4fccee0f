package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/logger"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/middleware"
)

func requestIDFor(t *testing.T, inbound string) (ctxID, headerID string) {
	t.Helper()
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	if inbound != "" {
		req.Header.Set("X-Request-ID", inbound)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return ctxID, rr.Header().Get("X-Request-ID")
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	ctxID, headerID := requestIDFor(t, "")
	if ctxID == "" {
		t.Fatal("no request id in context")
	}
	if ctxID != headerID {
		t.Errorf("context id %q != response header %q", ctxID, headerID)
	}
}

func TestRequestID_HonorsValidInbound(t *testing.T) {
	ctxID, headerID := requestIDFor(t, "trace-1.a_B")
	if ctxID != "trace-1.a_B" || headerID != "trace-1.a_B" {
		t.Errorf("inbound id not propagated: ctx=%q header=%q", ctxID, headerID)
	}
}

func TestRequestID_ReplacesHostileInbound(t *testing.T) {
	for _, inbound := range []string{
		"bad id with spaces",
		"inject\"quotes",
		strings.Repeat("a", 65),
	} {
		ctxID, headerID := requestIDFor(t, inbound)
		if ctxID == inbound || headerID == inbound {
			t.Errorf("inbound %q was propagated instead of replaced", inbound)
		}
		if ctxID == "" {
			t.Errorf("inbound %q: no replacement id generated", inbound)
		}
	}
}
