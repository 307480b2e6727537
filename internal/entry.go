// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/patto/internal/api"
	"github.com/starford/patto/internal/index"
	"github.com/starford/patto/internal/mcpserver"
	"github.com/starford/patto/internal/noteservice"
	"github.com/starford/patto/internal/notify"
	"github.com/starford/patto/internal/preview"
	"github.com/starford/patto/internal/storage"
	"github.com/starford/patto/internal/workspace"
)

// runtime holds the long-lived components shared by every front end.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	broker *notify.Broker
	repo   *workspace.Repository
	db     *index.DB
	svc    *noteservice.Service
}

func (rt *runtime) Close() {
	rt.repo.Close()
	rt.broker.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("index: close failed", slog.String("error", err.Error()))
	}
}

func setup(opts []Option) (*runtime, *application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_root", cfg.Workspace.Root),
		slog.String("extension", cfg.Workspace.Extension),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Workspace.Root, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create workspace dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Workspace.Root, cfg.Workspace.Extension)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init index: %w", err)
	}

	broker := notify.NewBroker(cfg.Notifier.Buffer, cfg.Notifier.GraphThrottle)
	repo := workspace.New(store,
		workspace.WithLogger(logger),
		workspace.WithBroker(broker),
		workspace.WithScanParallelism(cfg.Workspace.ScanParallelism),
	)

	return &runtime{
		cfg:    cfg,
		logger: logger,
		broker: broker,
		repo:   repo,
		db:     db,
		svc:    noteservice.NewService(store, repo, db),
	}, app, nil
}

// initialScan loads the workspace. A scan superseded by a watcher-triggered
// rescan is not an error.
func (rt *runtime) initialScan(ctx context.Context) error {
	start := time.Now()
	stats, err := rt.repo.Rescan(ctx)
	switch {
	case errors.Is(err, workspace.ErrScanSuperseded), errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return fmt.Errorf("initial scan: %w", err)
	}
	rt.logger.Info("workspace: loaded",
		slog.Int("files", stats.Files),
		slog.Int("parsed", stats.Parsed),
		slog.Int("failed", stats.Failed),
		slog.Duration("took", time.Since(start)))
	return nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, _, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logger := rt.cfg, rt.logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool

	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token,
		rt.broker, preview.NewHandler(rt.broker, logger, cfg.App.HTTP.AllowedOrigins...))

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rt.initialScan(gCtx); err != nil {
			return err
		}
		ready.Store(true)
		return nil
	})

	g.Go(func() error {
		return rt.repo.Watch(gCtx, cfg.Workspace.Debounce)
	})

	g.Go(func() error {
		return index.Follow(gCtx, rt.db, rt.repo, logger)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to the configured log
// output, which must not be stdout.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, app, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.initialScan(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.repo.Watch(gCtx, rt.cfg.Workspace.Debounce)
	})
	g.Go(func() error {
		return index.Follow(gCtx, rt.db, rt.repo, rt.logger)
	})

	srv := mcpserver.New(rt.svc, app.version)
	serveErr := srv.ServeStdio()
	cancel()
	if err := g.Wait(); err != nil {
		rt.logger.Warn("mcp: background task failed", slog.String("error", err.Error()))
	}
	return serveErr
}
