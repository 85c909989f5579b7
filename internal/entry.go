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

	"github.com/starford/menutree/internal/api"
	"github.com/starford/menutree/internal/mcpserver"
	"github.com/starford/menutree/internal/menuservice"
	"github.com/starford/menutree/internal/menutree"
	"github.com/starford/menutree/internal/metrics"
	"github.com/starford/menutree/internal/seed"
	"github.com/starford/menutree/internal/sse"
	"github.com/starford/menutree/internal/storage"
	"github.com/starford/menutree/internal/store"
)

func newApplication(opts []Option, logOut io.Writer) (*application, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if app.logger == nil {
		// Initialize structured JSON logger.
		app.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}
	slog.SetDefault(app.logger)
	return app, nil
}

// core is the store and engine pair shared by every entry point.
type core struct {
	store  store.Store
	engine *menutree.Engine
}

// openCore opens the record store, imports the seed directory when one is
// configured and loads the first forest.
func (a *application) openCore(ctx context.Context, observers ...menutree.Observer) (*core, error) {
	cfg, logger := a.config, a.logger

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN())
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if cfg.Seed.Dir != "" {
		files, err := a.seedFiles()
		if err != nil {
			st.Close()
			return nil, err
		}
		if _, err := seed.Sync(ctx, st, files, logger); err != nil {
			logger.Warn("initial seed import failed", slog.String("error", err.Error()))
		}
		files.Close()
	}

	engineOpts := []menutree.EngineOption{
		menutree.WithLogger(logger),
		menutree.WithDispatchTimeout(cfg.Dispatch.Timeout),
	}
	for _, o := range observers {
		engineOpts = append(engineOpts, menutree.WithObserver(o))
	}
	engine := menutree.NewEngine(st, engineOpts...)
	if err := engine.Refresh(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("load menus: %w", err)
	}

	return &core{store: st, engine: engine}, nil
}

func (a *application) seedFiles() (*storage.FS, error) {
	if err := os.MkdirAll(a.config.Seed.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create seed dir: %w", err)
	}
	files, err := storage.NewFS(a.config.Seed.Dir)
	if err != nil {
		return nil, fmt.Errorf("init seed storage: %w", err)
	}
	return files, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg, logger := app.config, app.logger

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("seed_dir", cfg.Seed.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	m := metrics.New()
	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()

	c, err := app.openCore(ctx, m, broker)
	if err != nil {
		return err
	}
	defer c.store.Close()

	svc := menuservice.New(c.store, c.engine, logger, broker)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if c.engine.Snapshot().Seq == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", m.Handler())

	// Mount API routes under /api; the SSE stream lands on /api/events.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Re-import the seed directory on change and rebuild the forest.
	if cfg.Seed.Watch {
		files, err := app.seedFiles()
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer files.Close()
			err := seed.Watch(gCtx, c.store, files, files.Root(), seed.DefaultDebounce, logger, func(res seed.Result) {
				if err := svc.Refresh(gCtx); err != nil {
					logger.Warn("rebuild after seed import failed", slog.String("error", err.Error()))
				}
			})
			if err != nil {
				logger.Error("seed watcher failed", slog.String("error", err.Error()))
			}
			return nil
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

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the seed watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout. Logs go to stderr so they
// never interleave with protocol frames.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}

	c, err := app.openCore(ctx)
	if err != nil {
		return err
	}
	defer c.store.Close()

	svc := menuservice.New(c.store, c.engine, app.logger, nil)
	app.logger.Info("MCP server starting on stdio")
	return mcpserver.New(svc).ServeStdio()
}

// Export writes the current record collection to out as a seed file.
func Export(ctx context.Context, out string, opts ...Option) (int, error) {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return 0, err
	}

	c, err := app.openCore(ctx)
	if err != nil {
		return 0, err
	}
	defer c.store.Close()

	abs, err := filepath.Abs(out)
	if err != nil {
		return 0, err
	}
	files, err := storage.NewFS(filepath.Dir(abs))
	if err != nil {
		return 0, fmt.Errorf("init export storage: %w", err)
	}
	defer files.Close()
	n, err := seed.Export(ctx, c.store, files, filepath.Base(abs))
	if err != nil {
		return 0, fmt.Errorf("export menus: %w", err)
	}
	app.logger.Info("menus exported", slog.String("path", abs), slog.Int("menus", n))
	return n, nil
}
