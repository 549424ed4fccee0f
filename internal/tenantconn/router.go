// Package tenantconn owns the cache of tenant-scoped data-access handles.
// Handles are created lazily on first access for a tenant, shared across
// concurrent requests for that tenant, and never shared across tenants.
package tenantconn

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/otel"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/resilience"
)

// Conn is the opaque tenant-exclusive data-access object owned by a Handle.
// In production this is a *pgxpool.Pool bound to the tenant's partition.
type Conn interface {
	Close()
}

// Dialer opens a connection scoped to one tenant's data partition.
type Dialer interface {
	Dial(ctx context.Context, tenantID string) (Conn, error)
}

// Handle is a cached, reference-counted tenant connection. Callers must
// Release the handle when the request completes; the idle-eviction sweep
// only closes handles that are unreferenced.
type Handle struct {
	tenantID string
	conn     Conn
	gen      uint64

	refs     atomic.Int64
	evicting atomic.Bool
	lastUsed atomic.Int64 // unix nanos
}

// TenantID returns the tenant this handle was constructed for.
func (h *Handle) TenantID() string { return h.tenantID }

// Conn returns the underlying tenant-scoped connection.
func (h *Handle) Conn() Conn { return h.conn }

// Generation returns the handle's creation generation, which distinguishes
// a re-dialed handle from an evicted one for the same tenant.
func (h *Handle) Generation() uint64 { return h.gen }

// Release marks the end of one request's use of the handle.
func (h *Handle) Release() {
	h.lastUsed.Store(time.Now().UnixNano())
	h.refs.Add(-1)
}

// acquire registers an in-flight use. It fails when the handle is being
// evicted, so an evicting handle is never handed out.
func (h *Handle) acquire() bool {
	h.refs.Add(1)
	if h.evicting.Load() {
		h.refs.Add(-1)
		return false
	}
	h.lastUsed.Store(time.Now().UnixNano())
	return true
}

// Router maintains the tenant -> handle map with per-tenant single-flight
// construction. Requests for different tenants never block on each other;
// only concurrent first access for the same tenant serializes.
type Router struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	group   singleflight.Group
	dialer  Dialer
	sem     *semaphore.Weighted
	breaker *resilience.Breaker
	cfg     config.TenantConns
	gen     atomic.Uint64
	log     *slog.Logger
	metrics *otel.Metrics
}

// NewRouter creates a Router. metrics may be nil.
func NewRouter(dialer Dialer, cfg config.TenantConns, breaker *resilience.Breaker, log *slog.Logger, metrics *otel.Metrics) *Router {
	maxDials := cfg.MaxDials
	if maxDials < 1 {
		maxDials = 1
	}
	return &Router{
		handles: make(map[string]*Handle),
		dialer:  dialer,
		sem:     semaphore.NewWeighted(int64(maxDials)),
		breaker: breaker,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
	}
}

// Route returns the handle for tenantID, constructing it on first access.
// The returned handle is already acquired; the caller must Release it.
func (r *Router) Route(ctx context.Context, tenantID string) (*Handle, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("route: empty tenant id: %w", domain.ErrTenantAccessDenied)
	}

	for {
		r.mu.RLock()
		h := r.handles[tenantID]
		r.mu.RUnlock()
		if h != nil && h.acquire() {
			return h, nil
		}

		ch := r.group.DoChan(tenantID, func() (any, error) {
			return r.dial(ctx, tenantID)
		})

		select {
		case <-ctx.Done():
			// The shared construction continues for any other waiters;
			// this caller gives up without poisoning the cache.
			return nil, fmt.Errorf("route tenant %s: %w: %v", tenantID, domain.ErrTenantUnavailable, ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			h := res.Val.(*Handle)
			if h.acquire() {
				return h, nil
			}
			// Evicted between construction and acquire; retry from the top.
		}
	}
}

// dial constructs and caches a handle for tenantID. Runs at most once per
// tenant at a time (single-flight), bounded by the dial semaphore, the
// dial timeout and the circuit breaker. Failures are never cached.
func (r *Router) dial(ctx context.Context, tenantID string) (*Handle, error) {
	// A previous flight may have finished after our map miss.
	r.mu.RLock()
	if h := r.handles[tenantID]; h != nil && !h.evicting.Load() {
		r.mu.RUnlock()
		return h, nil
	}
	r.mu.RUnlock()

	spanCtx, span := otel.StartDial(ctx, tenantID)
	defer span.End()

	dctx, cancel := context.WithTimeout(spanCtx, r.cfg.DialTimeout)
	defer cancel()

	if err := r.sem.Acquire(dctx, 1); err != nil {
		return nil, fmt.Errorf("dial tenant %s: %w: %v", tenantID, domain.ErrTenantUnavailable, err)
	}
	defer r.sem.Release(1)

	r.metrics.AddTenantDial(ctx)

	var conn Conn
	err := r.breaker.Execute(func() error {
		c, dialErr := r.dialer.Dial(dctx, tenantID)
		if dialErr != nil {
			return dialErr
		}
		conn = c
		return nil
	})
	if err != nil {
		r.metrics.AddDialFailure(ctx)
		r.log.Error("tenant partition dial failed", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("dial tenant %s: %w: %v", tenantID, domain.ErrTenantUnavailable, err)
	}

	h := &Handle{tenantID: tenantID, conn: conn, gen: r.gen.Add(1)}
	h.lastUsed.Store(time.Now().UnixNano())

	r.mu.Lock()
	if existing := r.handles[tenantID]; existing != nil && !existing.evicting.Load() {
		r.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	r.handles[tenantID] = h
	r.mu.Unlock()

	r.metrics.AddActiveHandles(ctx, 1)
	r.log.Info("tenant connection established", "tenant_id", tenantID, "generation", h.gen)
	return h, nil
}

// Len returns the number of cached handles.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// StartSweep runs the idle-eviction loop until ctx is cancelled.
// A zero IdleTTL disables eviction: handles then live for the process.
func (r *Router) StartSweep(ctx context.Context) {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Sweep evicts handles that are both idle past the TTL and unreferenced.
// An in-flight use either keeps the reference count non-zero (eviction
// backs off) or observes the evicting flag and re-dials.
func (r *Router) Sweep() {
	cutoff := time.Now().Add(-r.cfg.IdleTTL).UnixNano()

	var victims []*Handle
	r.mu.Lock()
	for id, h := range r.handles {
		if h.refs.Load() != 0 || h.lastUsed.Load() >= cutoff {
			continue
		}
		h.evicting.Store(true)
		if h.refs.Load() != 0 {
			h.evicting.Store(false)
			continue
		}
		delete(r.handles, id)
		victims = append(victims, h)
	}
	r.mu.Unlock()

	for _, h := range victims {
		h.conn.Close()
		r.metrics.AddActiveHandles(context.Background(), -1)
		r.log.Info("evicted idle tenant connection", "tenant_id", h.tenantID, "generation", h.gen)
	}
}

// Close evicts and closes every handle. Intended for shutdown only.
func (r *Router) Close() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		h.evicting.Store(true)
		h.conn.Close()
		r.metrics.AddActiveHandles(context.Background(), -1)
	}
}
