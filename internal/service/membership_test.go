package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/audit"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/tenant"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/service"
)

type membershipStore struct {
	mu      sync.Mutex
	active  map[string]bool
	err     error
	block   time.Duration
	lookups atomic.Int64
}

func (s *membershipStore) IsActiveMember(ctx context.Context, userID, tenantID string) (bool, error) {
	s.lookups.Add(1)
	if s.block > 0 {
		select {
		case <-time.After(s.block):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.active[userID+":"+tenantID], nil
}

func (s *membershipStore) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	return nil, domain.ErrNotFound
}

func (s *membershipStore) GetMembership(ctx context.Context, userID, tenantID string) (*tenant.Membership, error) {
	return nil, domain.ErrNotFound
}

func (s *membershipStore) InsertAuditRecord(ctx context.Context, rec *audit.Record) error { return nil }

func (s *membershipStore) ListAuditRecords(ctx context.Context, tenantID string, limit int) ([]audit.Record, error) {
	return nil, nil
}

// memCache is a minimal cache.Cache for cache-path tests.
type memCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCache() *memCache { return &memCache{m: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsActiveMemberFreshLookup(t *testing.T) {
	store := &membershipStore{active: map[string]bool{"u1:t1": true}}
	reg := service.NewMembershipRegistry(store, nil, config.Membership{LookupTimeout: time.Second}, discard())

	ok, err := reg.IsActiveMember(context.Background(), "u1", "t1")
	if err != nil || !ok {
		t.Fatalf("expected active, got ok=%v err=%v", ok, err)
	}
	ok, err = reg.IsActiveMember(context.Background(), "u1", "t2")
	if err != nil || ok {
		t.Fatalf("expected inactive, got ok=%v err=%v", ok, err)
	}
}

func TestIsActiveMemberEmptyIDs(t *testing.T) {
	store := &membershipStore{active: map[string]bool{"u1:t1": true}}
	reg := service.NewMembershipRegistry(store, nil, config.Membership{LookupTimeout: time.Second}, discard())

	for _, pair := range [][2]string{{"", "t1"}, {"u1", ""}, {"", ""}} {
		ok, err := reg.IsActiveMember(context.Background(), pair[0], pair[1])
		if err != nil || ok {
			t.Errorf("(%q,%q): expected (false,nil), got (%v,%v)", pair[0], pair[1], ok, err)
		}
	}
	if store.lookups.Load() != 0 {
		t.Fatal("empty ids reached the store")
	}
}

func TestIsActiveMemberStoreFailure(t *testing.T) {
	store := &membershipStore{err: errors.New("connection refused")}
	reg := service.NewMembershipRegistry(store, nil, config.Membership{LookupTimeout: time.Second}, discard())

	_, err := reg.IsActiveMember(context.Background(), "u1", "t1")
	if !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable, got %v", err)
	}
}

func TestIsActiveMemberTimeout(t *testing.T) {
	store := &membershipStore{active: map[string]bool{"u1:t1": true}, block: 200 * time.Millisecond}
	reg := service.NewMembershipRegistry(store, nil, config.Membership{LookupTimeout: 10 * time.Millisecond}, discard())

	_, err := reg.IsActiveMember(context.Background(), "u1", "t1")
	if !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable on timeout, got %v", err)
	}
}

func TestIsActiveMemberCachesPositiveOnly(t *testing.T) {
	store := &membershipStore{active: map[string]bool{"u1:t1": true}}
	c := newMemCache()
	reg := service.NewMembershipRegistry(store, c,
		config.Membership{LookupTimeout: time.Second, CacheTTL: time.Minute}, discard())

	ctx := context.Background()
	if ok, _ := reg.IsActiveMember(ctx, "u1", "t1"); !ok {
		t.Fatal("expected active")
	}
	if ok, _ := reg.IsActiveMember(ctx, "u1", "t1"); !ok {
		t.Fatal("expected active from cache")
	}
	if got := store.lookups.Load(); got != 1 {
		t.Fatalf("expected 1 store lookup with cache enabled, got %d", got)
	}

	// Denials are never cached: each denied check hits the store.
	before := store.lookups.Load()
	reg.IsActiveMember(ctx, "u2", "t1")
	reg.IsActiveMember(ctx, "u2", "t1")
	if got := store.lookups.Load() - before; got != 2 {
		t.Fatalf("denials must not be cached, got %d lookups", got)
	}
}

func TestInvalidateDropsCachedDecision(t *testing.T) {
	store := &membershipStore{active: map[string]bool{"u1:t1": true}}
	c := newMemCache()
	reg := service.NewMembershipRegistry(store, c,
		config.Membership{LookupTimeout: time.Second, CacheTTL: time.Minute}, discard())

	ctx := context.Background()
	reg.IsActiveMember(ctx, "u1", "t1")
	reg.Invalidate(ctx, "u1", "t1")

	// Revoke and check again: the fresh lookup now denies.
	store.mu.Lock()
	store.active = map[string]bool{}
	store.mu.Unlock()

	ok, err := reg.IsActiveMember(ctx, "u1", "t1")
	if err != nil || ok {
		t.Fatalf("expected denial after invalidation, got ok=%v err=%v", ok, err)
	}
}

func TestCacheDisabledByDefault(t *testing.T) {
	store := &membershipStore{active: map[string]bool{"u1:t1": true}}
	c := newMemCache()
	// CacheTTL zero: the cache must not be consulted even when provided.
	reg := service.NewMembershipRegistry(store, c, config.Membership{LookupTimeout: time.Second}, discard())

	ctx := context.Background()
	reg.IsActiveMember(ctx, "u1", "t1")
	reg.IsActiveMember(ctx, "u1", "t1")
	if got := store.lookups.Load(); got != 2 {
		t.Fatalf("expected fresh lookups with caching disabled, got %d", got)
	}
	if len(c.m) != 0 {
		t.Fatal("cache was written with caching disabled")
	}
}
