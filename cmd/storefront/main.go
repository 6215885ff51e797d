// Tester box storefront - sells ten-perfume tester boxes on top of the
// Shopify Storefront API, over REST and MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tester-box/internal/config"
	"tester-box/internal/handler"
	"tester-box/internal/metrics"
	"tester-box/internal/middleware"
	"tester-box/internal/model"
	"tester-box/internal/persist"
	"tester-box/internal/session"
	"tester-box/internal/shopify"
	"tester-box/internal/shopper"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.Shopify.StoreDomain),
		slog.String("api_version", cfg.Shopify.APIVersion),
		slog.String("collection", cfg.Shopify.CollectionHandle),
		slog.String("session_backend", cfg.Session.Backend),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, probe, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer closeStore()

	storefront, err := shopify.New(shopify.Config{
		Client: shopify.ClientConfig{
			StoreDomain: cfg.Shopify.StoreDomain,
			AccessToken: cfg.Shopify.StorefrontToken,
			APIVersion:  cfg.Shopify.APIVersion,
			ChromeTLS:   cfg.Shopify.ChromeTLS,
			Logger:      logger,
			Metrics:     m,
		},
		CollectionHandle:    cfg.Shopify.CollectionHandle,
		BundleProductHandle: cfg.Shopify.BundleProductHandle,
		CatalogRevalidate:   cfg.Shopify.CatalogRevalidate.Std(),
	})
	if err != nil {
		return fmt.Errorf("creating shopify adapter: %w", err)
	}

	sessions := session.NewManager(session.ManagerConfig{
		Store:   store,
		Adapter: storefront,
		Logger:  logger,
		Metrics: m,
	})

	h := handler.New(sessions, probe, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Apply middleware chain: recovery → shopper → logging → metrics → handler
	// Recovery must be outermost to catch panics from logging middleware.
	// Logging and metrics read the matched route, which the mux records on
	// the request it receives, so they sit inside shopper's context swap.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		shopper.Middleware(logger),
		middleware.Logging(logger),
		middleware.Metrics(m),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go sweepSessions(janitorCtx, sessions, cfg.Session.Idle.Std(), logger)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopJanitor()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// openStore builds the configured session store. The returned probe backs
// /healthz and is nil for the in-memory store.
func openStore(ctx context.Context, cfg *config.Config) (persist.Store, handler.Probe, func(), error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		r, err := persist.NewRedis(connectCtx, persist.RedisConfig{
			URL: cfg.Session.RedisURL,
			TTL: cfg.Session.TTL.Std(),
			// Saved products outlive idle carts.
			Persistent: []string{model.WishlistKey},
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return r, r.Ping, func() { r.Close() }, nil
	default:
		return persist.NewMemory(), nil, func() {}, nil
	}
}

// sweepSessions evicts idle in-memory sessions until ctx is done.
// Persisted state is untouched and rehydrates on the next request.
func sweepSessions(ctx context.Context, sessions *session.Manager, idle time.Duration, logger *slog.Logger) {
	interval := idle / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(idle); n > 0 {
				logger.Debug("idle sessions evicted",
					slog.Int("evicted", n),
					slog.Int("live", sessions.Len()),
				)
			}
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
