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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/auth"
	"github.com/starford/raido/internal/cache"
	"github.com/starford/raido/internal/events"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/ordering"
	"github.com/starford/raido/internal/ratelimit"
	"github.com/starford/raido/internal/store"
	"github.com/starford/raido/internal/tripservice"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger. In MCP mode stdout carries the
	// protocol, so logs go to stderr.
	logOut := io.Writer(os.Stdout)
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.Bool("redis", cfg.Redis.Enabled()),
		slog.String("log_level", cfg.App.LogLevel.Level().String()))

	// Initialize the store.
	var st store.Store
	switch cfg.Store.Driver {
	case StoreDriverSQLite:
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer db.Close()
		st = db
	case StoreDriverMemory:
		st = store.NewMemory()
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	// Cache and rate limiter share the Redis connection when one is
	// configured; otherwise both run in-process.
	var (
		backend cache.Backend
		limiter ratelimit.Limiter
		rdb     *redis.Client
	)
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		backend = cache.NewRedis(rdb)
		limiter = ratelimit.NewRedis(rdb, cfg.RateLimit.PerMinute, logger)
	} else {
		backend = cache.NewMemoryBackend()
		limiter = ratelimit.NewMemory(cfg.RateLimit.PerMinute)
	}
	coord := cache.New(backend, cfg.Cache.TTLs(), logger)

	eng := ordering.NewEngine(st)

	// MCP stdio mode serves the read-only tool surface and exits with
	// the client.
	if app.mcp {
		svc := tripservice.NewService(st, eng, coord, nil, logger)
		logger.Info("Starting MCP server on stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	broker := events.NewBroker()
	defer broker.Close()

	svc := tripservice.NewService(st, eng, coord, broker, logger)
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)

	ready := func(ctx context.Context) error {
		if _, err := st.Stats(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Mount("/", api.NewRouter(svc, verifier, limiter, broker, ready))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Follow the config file and apply the hot-reloadable settings. A
	// watcher failure loses hot reload, never the server.
	watchCtx, stopWatch := context.WithCancel(gCtx)
	defer stopWatch()
	if app.configFile != "" {
		g.Go(func() error {
			err := watchConfig(watchCtx, app.configFile, logger, func(next *Config) {
				limiter.SetLimit(next.RateLimit.PerMinute)
				coord.SetTTLs(next.Cache.TTLs())
			})
			if err != nil {
				logger.Warn("Config watcher failed", slog.String("error", err.Error()))
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

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Close the broker first so open SSE streams end and stop
		// holding the drain.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the config watcher so the group can drain.
		stopWatch()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
