package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/Strob0t/CourseForge/internal/adapter/http"
	"github.com/Strob0t/CourseForge/internal/adapter/litellm"
	cfmcp "github.com/Strob0t/CourseForge/internal/adapter/mcp"
	cfnats "github.com/Strob0t/CourseForge/internal/adapter/nats"
	cfotel "github.com/Strob0t/CourseForge/internal/adapter/otel"
	"github.com/Strob0t/CourseForge/internal/adapter/ristretto"
	"github.com/Strob0t/CourseForge/internal/adapter/ws"
	"github.com/Strob0t/CourseForge/internal/config"
	"github.com/Strob0t/CourseForge/internal/logger"
	"github.com/Strob0t/CourseForge/internal/middleware"
	"github.com/Strob0t/CourseForge/internal/port/a2a"
	"github.com/Strob0t/CourseForge/internal/resilience"
	"github.com/Strob0t/CourseForge/internal/service"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	idempotencyTTL  = 24 * time.Hour
	idempotencyMB   = 16
	shutdownTimeout = 10 * time.Second
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

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

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"catalog_source", cfg.Catalog.Source,
		"generator", cfg.Generator.Provider,
		"model", cfg.Generator.Model,
		"strategy", cfg.Orchestrator.Strategy,
		"max_turns", cfg.Orchestrator.MaxTurns,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTEL, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}()

	cat, closeCatalog, err := openCatalog(ctx, cfg, queue, metrics)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer closeCatalog()

	registry, routerID, err := loadAdvisors(cfg.Orchestrator)
	if err != nil {
		return fmt.Errorf("advisors: %w", err)
	}

	// --- Services ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breaker.SetOnStateChange(func(from, to resilience.State) {
		slog.Warn("generator circuit breaker", "from", from.String(), "to", to.String())
	})
	gen := newGenerator(cfg)

	hub := ws.NewHub(originHost(cfg.Server.CORSOrigin))
	hub.SetAGUI(true)
	defer hub.Close()

	exec := service.NewTurnExecutor(gen, cat, breaker, cfg.Orchestrator, cfg.Schedule)
	exec.SetMetrics(metrics)

	orch := service.NewOrchestrator(registry, exec, routerID, cfg.Orchestrator)
	orch.SetBroadcaster(hub)
	orch.SetQueue(queue)
	orch.SetMetrics(metrics)

	schedules := service.NewScheduleService(orch, registry, cat, cfg.Schedule.TopN)
	schedules.SetQueue(queue)

	cancelWorker, err := schedules.StartWorker(ctx)
	if err != nil {
		return fmt.Errorf("schedule worker: %w", err)
	}
	defer cancelWorker()

	// --- HTTP ---

	var llmClient *litellm.Client
	if cfg.Generator.Provider == "litellm" {
		llmClient = litellm.NewClient(cfg.LiteLLM.URL, cfg.LiteLLM.MasterKey)
		llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
		checkGeneratorModel(ctx, llmClient, cfg.Generator.Model)
	}

	handlers := &cfhttp.Handlers{
		Schedules:     schedules,
		LiteLLM:       llmClient,
		Queue:         queue,
		CatalogSource: cfg.Catalog.Source,
		Version:       version,
	}
	if inv, ok := cat.(cfhttp.CatalogInvalidator); ok {
		handlers.CatalogCache = inv
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	idemStore, err := ristretto.NewMB(idempotencyMB)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	defer idemStore.Close()

	r := chi.NewRouter()

	// Middleware
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.Health)
	r.Get("/ws", hub.HandleWS)

	// Runs are bounded by orchestrator.run_timeout. A2A tasks pay the same
	// limiter cost as /api/v1 generations.
	baseURL := "http://localhost:" + cfg.Server.Port
	routeOpts := cfhttp.RouteOptions{
		Limiter:          limiter,
		IdempotencyStore: idemStore,
		IdempotencyTTL:   idempotencyTTL,
		RefreshSecret:    cfg.Catalog.RefreshSecret,
	}
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Orchestrator.RunTimeout + 5*time.Second))
		a2a.NewHandler(baseURL, version, schedules).MountRoutes(r, routeOpts.GenerateLimits()...)
		cfhttp.MountRoutes(r, handlers, routeOpts)
	})

	if cfg.MCP.Enabled {
		mcpSrv := cfmcp.NewServer(cfmcp.ServerConfig{
			Addr:    ":" + cfg.MCP.Port,
			Name:    "courseforge",
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, cfmcp.ServerDeps{Schedules: schedules})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = mcpSrv.Stop(sctx)
		}()
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Orchestrator.RunTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
