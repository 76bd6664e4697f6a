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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/detailing-booking-widget/internal/api/router"
	"github.com/wolfman30/detailing-booking-widget/internal/app/bootstrap"
	appconfig "github.com/wolfman30/detailing-booking-widget/internal/config"
	httpmiddleware "github.com/wolfman30/detailing-booking-widget/internal/http/middleware"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("widget host stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupMetrics returns a registry with process collectors and its handler.
func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	logger.Info("starting booking widget host",
		"env", cfg.Env,
		"port", cfg.Port,
		"booking_api", cfg.BookingAPIBaseURL,
		"session_store", cfg.SessionStore,
	)

	redisClient, err := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := bootstrap.BuildSessionStore(cfg, redisClient)

	reg, metricsHandler := setupMetrics()
	w, err := bootstrap.BuildWidget(cfg, store, reg, logger)
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	handler := router.New(&router.Config{
		Logger:             logger,
		Widget:             w.Host,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
	})

	// no WriteTimeout: websocket connections are long-lived
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return w.Host.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
