// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pagenote/internal/api"
	"github.com/starford/pagenote/internal/background"
	"github.com/starford/pagenote/internal/mcpserver"
	"github.com/starford/pagenote/internal/models"
	"github.com/starford/pagenote/internal/noteservice"
	"github.com/starford/pagenote/internal/sse"
	"github.com/starford/pagenote/internal/storage"
)

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := newLogger(os.Stdout, cfg)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("store_path", cfg.Store.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, svc, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	// Teardown saves outlive every session.
	worker := background.NewWorker(svc, cfg.Session.TeardownQueue, logger, broker)

	sessions := api.NewSessions(svc, cfg.Session.Coordinator(), broker, worker, logger)
	h := api.NewHandler(sessions, svc, broker)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)
	// Background goroutines stop once the server is down and sessions are closed.
	bgCtx, stopBackground := context.WithCancel(gCtx)
	defer stopBackground()

	g.Go(func() error {
		return worker.Run(bgCtx)
	})

	// Reload notes written by other processes.
	if dv, ok := store.(*storage.Diskv); ok && cfg.Store.Watch {
		g.Go(func() error {
			return dv.Watch(bgCtx, logger, func(kind, key string) {
				if err := svc.Refresh(bgCtx, key); err != nil {
					logger.Warn("refresh failed", slog.String("key", key), slog.String("error", err.Error()))
					return
				}
				if key == models.FoldersKey {
					broker.PublishFolderEvent(kind, key)
					return
				}
				broker.PublishNoteEvent(kind, key)
			})
		})
	}

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
		defer stopBackground()

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		// Closing sessions hands unsaved drafts to the worker, which flushes
		// its queue once bgCtx ends.
		if err := sessions.CloseAll(shutdownCtx); err != nil {
			logger.Error("session close error", slog.String("error", err.Error()))
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

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	logger := newLogger(os.Stderr, app.config)
	slog.SetDefault(logger)

	store, svc, err := openStore(ctx, app.config, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	logger.Info("MCP server starting", slog.String("store_driver", app.config.Store.Driver))
	return mcpserver.New(svc, app.version).ServeStdio()
}

func newLogger(w io.Writer, cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// openStore opens the configured backend and rebuilds the folder index.
func openStore(ctx context.Context, cfg *Config, logger *slog.Logger) (storage.Store, *noteservice.Service, error) {
	if cfg.Store.Driver != storage.DriverMemory {
		dir := cfg.Store.Path
		if cfg.Store.Driver == storage.DriverSQLite {
			dir = filepath.Dir(cfg.Store.Path)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	store, err := storage.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}

	svc := noteservice.NewService(store, noteservice.WithLogger(logger))
	if err := svc.Init(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("init notes: %w", err)
	}
	return store, svc, nil
}
