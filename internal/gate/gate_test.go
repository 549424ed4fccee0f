package gate_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	ferriotel "github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/otel"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/audit"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/identity"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/tenant"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/gate"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/resilience"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/service"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/tenantconn"
)

const testSecret = "test-secret"

func b64(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func signToken(t *testing.T, secret string, claims identity.Claims) string {
	t.Helper()
	header := b64([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	signingInput := header + "." + b64(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	return signingInput + "." + b64(mac.Sum(nil))
}

func validClaims() identity.Claims {
	now := time.Now()
	return identity.Claims{
		UserID:   "user-1",
		TenantID: "tenant-a",
		Role:     identity.RoleOperator,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(time.Hour).Unix(),
		Issuer:   "ferri-accounts",
		Audience: "ferri",
	}
}

type memberStore struct {
	active  map[string]bool // "user:tenant"
	err     error
	lookups atomic.Int64
}

func (s *memberStore) IsActiveMember(ctx context.Context, userID, tenantID string) (bool, error) {
	s.lookups.Add(1)
	if s.err != nil {
		return false, s.err
	}
	return s.active[userID+":"+tenantID], nil
}

func (s *memberStore) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (s *memberStore) GetMembership(ctx context.Context, userID, tenantID string) (*tenant.Membership, error) {
	return nil, domain.ErrNotFound
}

func (s *memberStore) InsertAuditRecord(ctx context.Context, rec *audit.Record) error { return nil }

func (s *memberStore) ListAuditRecords(ctx context.Context, tenantID string, limit int) ([]audit.Record, error) {
	return nil, nil
}

type stubConn struct{}

func (stubConn) Close() {}

type stubDialer struct {
	err   error
	dials atomic.Int64
}

func (d *stubDialer) Dial(ctx context.Context, tenantID string) (tenantconn.Conn, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return stubConn{}, nil
}

func testPipeline(t *testing.T, store *memberStore, dialer *stubDialer) *gate.Pipeline {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier := service.NewVerifier(config.Auth{
		JWTSecret: testSecret,
		Issuer:    "ferri-accounts",
		Audience:  "ferri",
	})
	members := service.NewMembershipRegistry(store, nil, config.Membership{LookupTimeout: time.Second}, log)
	router := tenantconn.NewRouter(dialer, config.TenantConns{DialTimeout: time.Second, MaxDials: 2},
		resilience.NewBreaker(100, time.Second), log, nil)
	t.Cleanup(router.Close)

	return gate.NewPipeline(verifier, members, router, nil, log)
}

func TestAdmitMissingToken(t *testing.T) {
	store := &memberStore{}
	p := testPipeline(t, store, &stubDialer{})

	rc, rej := p.Admit(context.Background(), "")
	if rc != nil || rej == nil {
		t.Fatal("expected rejection for missing token")
	}
	if rej.Stage != gate.StageCredential {
		t.Fatalf("expected credential stage, got %s", rej.Stage)
	}
	if rej.Status() != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rej.Status())
	}
	if got := store.lookups.Load(); got != 0 {
		t.Fatalf("membership was consulted before verification: %d lookups", got)
	}
}

func TestAdmitTamperedToken(t *testing.T) {
	store := &memberStore{active: map[string]bool{"user-1:tenant-a": true}}
	p := testPipeline(t, store, &stubDialer{})

	token := signToken(t, "wrong-secret", validClaims())
	_, rej := p.Admit(context.Background(), token)
	if rej == nil || rej.Stage != gate.StageCredential {
		t.Fatalf("expected credential rejection, got %+v", rej)
	}
	if !errors.Is(rej.Err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", rej.Err)
	}
	if store.lookups.Load() != 0 {
		t.Fatal("membership was consulted for a tampered token")
	}
}

func TestAdmitExpiredToken(t *testing.T) {
	p := testPipeline(t, &memberStore{}, &stubDialer{})

	claims := validClaims()
	claims.Expiry = time.Now().Add(-time.Minute).Unix()
	_, rej := p.Admit(context.Background(), signToken(t, testSecret, claims))
	if rej == nil || !errors.Is(rej.Err, domain.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %+v", rej)
	}
	if rej.Status() != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rej.Status())
	}
}

func TestAdmitNoTenantClaim(t *testing.T) {
	p := testPipeline(t, &memberStore{}, &stubDialer{})

	claims := validClaims()
	claims.TenantID = ""
	_, rej := p.Admit(context.Background(), signToken(t, testSecret, claims))
	if rej == nil || rej.Stage != gate.StageTenant {
		t.Fatalf("expected tenant rejection, got %+v", rej)
	}
	if rej.Status() != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rej.Status())
	}
}

// admissionStages collects the stage attributes recorded on the admission
// duration histogram.
func admissionStages(t *testing.T, reader *sdkmetric.ManualReader) []string {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	var stages []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "ferri.admission.duration_seconds" {
				continue
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("unexpected histogram data type %T", m.Data)
			}
			for _, dp := range hist.DataPoints {
				if v, found := dp.Attributes.Value(attribute.Key("stage")); found {
					stages = append(stages, v.AsString())
				}
			}
		}
	}
	return stages
}

func TestAdmitNoTenantClaimRecordsDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otelapi.GetMeterProvider()
	otelapi.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otelapi.SetMeterProvider(prev) })

	metrics, err := ferriotel.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := service.NewVerifier(config.Auth{
		JWTSecret: testSecret,
		Issuer:    "ferri-accounts",
		Audience:  "ferri",
	})
	members := service.NewMembershipRegistry(&memberStore{}, nil, config.Membership{LookupTimeout: time.Second}, log)
	router := tenantconn.NewRouter(&stubDialer{}, config.TenantConns{DialTimeout: time.Second, MaxDials: 2},
		resilience.NewBreaker(100, time.Second), log, metrics)
	t.Cleanup(router.Close)
	p := gate.NewPipeline(verifier, members, router, metrics, log)

	claims := validClaims()
	claims.TenantID = ""
	if _, rej := p.Admit(context.Background(), signToken(t, testSecret, claims)); rej == nil {
		t.Fatal("expected rejection for missing tenant claim")
	}

	// Every rejection path records the pipeline duration tagged with the
	// stage it stopped at, including the missing-tenant-claim rejection.
	stages := admissionStages(t, reader)
	found := false
	for _, s := range stages {
		if s == "tenant_validated" {
			found = true
		}
	}
	if !found {
		t.Fatalf("admission duration not recorded for the tenant stage; got stages %v", stages)
	}
}

func TestAdmitInactiveMembership(t *testing.T) {
	store := &memberStore{active: map[string]bool{}}
	dialer := &stubDialer{}
	p := testPipeline(t, store, dialer)

	_, rej := p.Admit(context.Background(), signToken(t, testSecret, validClaims()))
	if rej == nil || rej.Stage != gate.StageTenant {
		t.Fatalf("expected tenant rejection, got %+v", rej)
	}
	if !errors.Is(rej.Err, domain.ErrTenantAccessDenied) {
		t.Fatalf("expected ErrTenantAccessDenied, got %v", rej.Err)
	}
	if rej.Claims == nil || rej.Claims.UserID != "user-1" {
		t.Fatal("rejection should carry the verified claims for auditing")
	}
	if dialer.dials.Load() != 0 {
		t.Fatal("connection was routed for a denied membership")
	}
}

func TestAdmitMembershipLookupFailure(t *testing.T) {
	store := &memberStore{err: errors.New("store down")}
	p := testPipeline(t, store, &stubDialer{})

	_, rej := p.Admit(context.Background(), signToken(t, testSecret, validClaims()))
	if rej == nil || !errors.Is(rej.Err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable, got %+v", rej)
	}
	if rej.Status() != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rej.Status())
	}
}

func TestAdmitDialFailure(t *testing.T) {
	store := &memberStore{active: map[string]bool{"user-1:tenant-a": true}}
	dialer := &stubDialer{err: errors.New("partition down")}
	p := testPipeline(t, store, dialer)

	_, rej := p.Admit(context.Background(), signToken(t, testSecret, validClaims()))
	if rej == nil || rej.Stage != gate.StageConnection {
		t.Fatalf("expected connection rejection, got %+v", rej)
	}
	if rej.Status() != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rej.Status())
	}
}

func TestAdmitSuccess(t *testing.T) {
	store := &memberStore{active: map[string]bool{"user-1:tenant-a": true}}
	p := testPipeline(t, store, &stubDialer{})

	rc, rej := p.Admit(context.Background(), signToken(t, testSecret, validClaims()))
	if rej != nil {
		t.Fatalf("unexpected rejection: stage=%s err=%v", rej.Stage, rej.Err)
	}
	if rc.UserID != "user-1" || rc.TenantID != "tenant-a" || rc.Role != identity.RoleOperator {
		t.Fatalf("unexpected request context: %+v", rc)
	}
	if rc.Conn == nil || rc.Conn.TenantID() != "tenant-a" {
		t.Fatal("request context is missing the tenant handle")
	}
	rc.Conn.Release()
}

func TestAdmitRevokedOnNextRequest(t *testing.T) {
	store := &memberStore{active: map[string]bool{"user-1:tenant-a": true}}
	p := testPipeline(t, store, &stubDialer{})
	token := signToken(t, testSecret, validClaims())

	rc, rej := p.Admit(context.Background(), token)
	if rej != nil {
		t.Fatalf("first request should pass: %+v", rej)
	}
	rc.Conn.Release()

	// Membership revoked mid-session: the same still-valid token is now refused.
	store.active = map[string]bool{}
	_, rej = p.Admit(context.Background(), token)
	if rej == nil || !errors.Is(rej.Err, domain.ErrTenantAccessDenied) {
		t.Fatalf("expected denial after revocation, got %+v", rej)
	}
}

func TestRejectionMessages(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{domain.ErrMissingCredential, http.StatusUnauthorized, "authentication required"},
		{domain.ErrInvalidSignature, http.StatusUnauthorized, "authentication required"},
		{domain.ErrExpired, http.StatusUnauthorized, "authentication required"},
		{domain.ErrTenantAccessDenied, http.StatusForbidden, "access denied"},
		{domain.ErrInsufficientRole, http.StatusForbidden, "access denied"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "rate limit exceeded"},
		{domain.ErrTenantUnavailable, http.StatusServiceUnavailable, "tenant temporarily unavailable"},
	}
	for _, tc := range cases {
		rej := &gate.Rejection{Err: tc.err}
		if rej.Status() != tc.status {
			t.Errorf("%v: status %d, want %d", tc.err, rej.Status(), tc.status)
		}
		if rej.Message() != tc.msg {
			t.Errorf("%v: message %q, want %q", tc.err, rej.Message(), tc.msg)
		}
	}
}

func TestAllowRole(t *testing.T) {
	admins := []identity.Role{identity.RoleOwner, identity.RoleAdmin}

	if !gate.AllowRole(admins, identity.RoleAdmin) {
		t.Error("admin should be allowed")
	}
	if gate.AllowRole(admins, identity.RoleViewer) {
		t.Error("viewer should be denied")
	}
	if gate.AllowRole(admins, "") {
		t.Error("absent role should be denied for a restricted route")
	}
	if !gate.AllowRole(nil, identity.RoleViewer) {
		t.Error("unrestricted route should admit any authenticated caller")
	}
}
