package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doctoruncle/clinic-assistant/internal/admin"
	"github.com/doctoruncle/clinic-assistant/internal/api/router"
	"github.com/doctoruncle/clinic-assistant/internal/app/bootstrap"
	appconfig "github.com/doctoruncle/clinic-assistant/internal/config"
	httpmiddleware "github.com/doctoruncle/clinic-assistant/internal/http/middleware"
	"github.com/doctoruncle/clinic-assistant/internal/observability/metrics"
	"github.com/doctoruncle/clinic-assistant/internal/session"
	"github.com/doctoruncle/clinic-assistant/internal/webchat"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting doctor uncle clinic assistant",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	backend, err := bootstrap.BuildSessionBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to set up session backend", "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()

	handler, limiter, err := setupHandler(cfg, backend, logger)
	if err != nil {
		logger.Error("failed to build chat service", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15*time.Second + cfg.ReplyDelay,
		IdleTimeout:       60 * time.Second,
	}

	// Stop on interrupt or when any component fails.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(time.Minute, gctx.Done())
		return nil
	})
	if sweeper, ok := backend.Store.(session.Sweeper); ok {
		g.Go(func() error {
			sweeper.Run(time.Minute, gctx.Done())
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		_ = backend.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupHandler builds the full HTTP surface on its own prometheus registry.
// The caller runs the returned limiter's idle sweep.
func setupHandler(cfg *appconfig.Config, backend *bootstrap.SessionBackend, logger *logging.Logger) (http.Handler, *httpmiddleware.RateLimiter, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	chatMetrics := metrics.NewChatMetrics(registry)

	manager, err := bootstrap.BuildManager(cfg, backend, chatMetrics, logger)
	if err != nil {
		return nil, nil, err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin chatbot endpoints disabled")
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        webchat.NewHandler(manager, cfg.CORSAllowedOrigins, logger, webchat.WithFrameLimiter(limiter)),
		AdminHandler:       admin.NewHandler(registry, logger),
		RateLimiter:        limiter,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	return handler, limiter, nil
}
