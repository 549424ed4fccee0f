// Command ferri runs the tenant gateway: the authorization and
// connection-routing layer in front of the platform's resource controllers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ferrihttp "github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/http"
	ferrinats "github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/nats"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/otel"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/postgres"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/adapter/ristretto"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/gate"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/logger"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/middleware"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/port/cache"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/resilience"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/service"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/tenantconn"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"rate_limit", cfg.Rate.Limit,
		"idle_ttl", cfg.TenantConns.IdleTTL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	otelShutdown, err := otel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	var metrics *otel.Metrics
	if cfg.Telemetry.Enabled {
		metrics, err = otel.NewMetrics()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	// --- Shared store ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	store := postgres.NewStore(pool)

	// --- Audit transport (optional) ---
	var auditPub service.AuditPublisher
	if cfg.NATS.URL != "" {
		pub, err := ferrinats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = pub.Close() }()
		auditPub = pub
	}

	// --- Membership cache (opt-in) ---
	var membershipCache cache.Cache
	if cfg.Membership.CacheTTL > 0 {
		rc, err := ristretto.New(cfg.Membership)
		if err != nil {
			return fmt.Errorf("membership cache: %w", err)
		}
		defer rc.Close()
		membershipCache = rc
	}

	// --- Services ---
	verifier := service.NewVerifier(cfg.Auth)
	members := service.NewMembershipRegistry(store, membershipCache, cfg.Membership, log)
	sink := service.NewAuditSink(store, auditPub, cfg.Audit, cfg.NATS.Subject, log)
	defer sink.Close()

	// --- Tenant connection router ---
	dialer, err := postgres.NewPartitionDialer(cfg.Postgres, cfg.TenantConns)
	if err != nil {
		return fmt.Errorf("partition dialer: %w", err)
	}
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	router := tenantconn.NewRouter(dialer, cfg.TenantConns, breaker, log, metrics)
	defer router.Close()
	router.StartSweep(ctx)

	pipeline := gate.NewPipeline(verifier, members, router, metrics, log)

	// --- Rate limiter ---
	limiter := middleware.NewRateLimiter(cfg.Rate, metrics)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	// --- HTTP ---
	handlers := ferrihttp.NewHandlers(store, router, sink, pool.Ping)

	var telemetryMW func(http.Handler) http.Handler
	if cfg.Telemetry.Enabled {
		telemetryMW = otel.HTTPMiddleware(cfg.Logging.Service)
	}

	mux := ferrihttp.NewRouter(cfg.Server, handlers, ferrihttp.Chain{
		Audit:     middleware.Audit(sink),
		RateLimit: limiter.Handler,
		Protect:   middleware.Protect(pipeline),
	}, telemetryMW, nil)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("starting gateway", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
