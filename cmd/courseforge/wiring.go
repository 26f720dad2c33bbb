package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/CourseForge/internal/adapter/anthropic"
	"github.com/Strob0t/CourseForge/internal/adapter/catalogcache"
	"github.com/Strob0t/CourseForge/internal/adapter/catalogfile"
	"github.com/Strob0t/CourseForge/internal/adapter/litellm"
	cfnats "github.com/Strob0t/CourseForge/internal/adapter/nats"
	"github.com/Strob0t/CourseForge/internal/adapter/natskv"
	cfotel "github.com/Strob0t/CourseForge/internal/adapter/otel"
	"github.com/Strob0t/CourseForge/internal/adapter/postgres"
	"github.com/Strob0t/CourseForge/internal/adapter/ristretto"
	"github.com/Strob0t/CourseForge/internal/adapter/tiered"
	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/domain/advisor"
	"github.com/Strob0t/CourseForge/internal/port/cache"
	"github.com/Strob0t/CourseForge/internal/port/catalog"
	"github.com/Strob0t/CourseForge/internal/port/generator"
)

// maxCatalogFills bounds concurrent backend lookups on cache misses.
const maxCatalogFills = 4

// openCatalog builds the catalog gateway for cfg.Catalog.Source, wrapped in
// the L1/L2 cache when enabled. queue may be nil, in which case only the
// in-process tier is used.
func openCatalog(ctx context.Context, cfg *config.Config, queue *cfnats.Queue, metrics *cfotel.Metrics) (catalog.Gateway, func(), error) {
	var (
		base    catalog.Gateway
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Catalog.Source {
	case "file":
		fc, err := catalogfile.Open(cfg.Catalog.File)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("catalog loaded from file", "path", cfg.Catalog.File, "courses", fc.Len())
		base = fc
	default:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")
		base = postgres.NewCatalogStore(pool)
	}

	if !cfg.Cache.Enabled {
		return base, closeAll, nil
	}

	l1, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}
	closers = append(closers, l1.Close)

	var store cache.Cache = l1
	if queue != nil && cfg.Cache.L2Bucket != "" {
		l2, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			slog.Warn("catalog l2 cache unavailable, using l1 only", "bucket", cfg.Cache.L2Bucket, "error", err)
		} else {
			store = tiered.New(l1, l2, cfg.Cache.L1TTL)
		}
	}

	gw := catalogcache.New(base, store, cfg.Cache.TTL, maxCatalogFills)
	if metrics != nil {
		gw.SetMetrics(metrics)
	}
	return gw, closeAll, nil
}

// loadAdvisors reads the advisor definitions and applies the router override.
func loadAdvisors(cfg config.Orchestrator) (*advisor.Registry, string, error) {
	reg, routerID, err := advisor.LoadFile(cfg.AdvisorsFile)
	if err != nil {
		return nil, "", err
	}
	if cfg.RouterID != "" {
		if _, err := reg.Resolve(cfg.RouterID); err != nil {
			return nil, "", fmt.Errorf("router %q: %w", cfg.RouterID, err)
		}
		routerID = cfg.RouterID
	}
	slog.Info("advisors loaded", "count", len(reg.Agents()), "router", routerID)
	return reg, routerID, nil
}

// newGenerator returns the collaborator for cfg.Generator.Provider. Calls are
// traced through otelhttp; the per-call bound comes from the turn timeout.
func newGenerator(cfg *config.Config) generator.Generator {
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Orchestrator.TurnTimeout + 5*time.Second,
	}
	if cfg.Generator.Provider == "anthropic" {
		return anthropic.NewGenerator(cfg.Anthropic, cfg.Generator, httpClient)
	}
	return litellm.NewGenerator(cfg.LiteLLM, cfg.Generator, httpClient)
}

// originHost turns a CORS origin into the host pattern the websocket
// handshake checks against.
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// checkGeneratorModel warns when the proxy does not route the configured
// model. Startup continues: the proxy may gain the route later.
func checkGeneratorModel(ctx context.Context, client *litellm.Client, model string) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, ok, err := client.ModelStatus(probeCtx, model)
	switch {
	case err != nil:
		slog.Warn("litellm model discovery failed", "model", model, "error", err)
	case !ok:
		slog.Warn("generator model not routed by litellm", "model", model)
	case m.Status != "reachable":
		slog.Warn("generator model unreachable", "model", model, "detail", m.ErrorDetail)
	default:
		slog.Info("generator model available", "model", model, "provider", m.Provider)
	}
}
