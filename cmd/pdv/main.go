package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp-saas/pdv/internal/di"
	"github.com/erp-saas/pdv/internal/handlers"
	"github.com/erp-saas/pdv/internal/platform/config"
	"github.com/erp-saas/pdv/internal/platform/idempotency"
	"github.com/erp-saas/pdv/internal/platform/observability"
)

func main() {
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(observability.WithLevel(os.Getenv("PDV_LOG_LEVEL")))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("pdv")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise container", zap.Error(err))
	}
	infra := container.Infrastructure

	idempotencyMiddleware := idempotency.Middleware(
		infra.Idempotency,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithOptionalKey(),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	currency := cfg.Merchant.Currency.String()
	checkoutHandlers := handlers.NewCheckoutHandlers(container.Services.Checkout,
		handlers.WithCheckoutCurrency(currency),
		handlers.WithDemoCartByDefault(cfg.Checkout.SeedDemoCart),
		handlers.WithFinalizeMiddlewares(idempotencyMiddleware),
	)
	catalogHandlers := handlers.NewCatalogHandlers(container.Services.Checkout, currency)

	buildInfo := buildInfoFromEnv(startedAt)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithReadinessCheck("catalog", container.CatalogReady),
		handlers.WithReadinessCheck("payments", container.PaymentsReady),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger),
		observability.TraceMiddleware(),
		observability.TerminalMiddleware(),
		observability.RecoveryMiddleware(logger),
		observability.RequestLoggerMiddleware(),
	}
	opts := []handlers.Option{
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
	}
	if cfg.Metrics.Enabled {
		middlewares = append(middlewares, infra.Metrics.Middleware())
		opts = append(opts, handlers.WithMetricsHandler(cfg.Metrics.Path, infra.Metrics.Handler()))
	}
	opts = append(opts, handlers.WithMiddlewares(middlewares...))

	router := handlers.NewRouter(opts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	group.Go(func() error {
		serverLogger.Info("pdv checkout api listening",
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	sweepLogger := logger.Named("checkout")
	group.Go(func() error {
		return runEvery(groupCtx, cfg.Checkout.SweepInterval, func(now time.Time) {
			if removed := container.PruneCheckouts(groupCtx, now); removed > 0 {
				sweepLogger.Info("checkout sweep removed idle checkouts", zap.Int("count", removed))
			}
		})
	})

	cleanupLogger := logger.Named("idempotency")
	group.Go(func() error {
		return runEvery(groupCtx, cfg.Idempotency.CleanupInterval, func(now time.Time) {
			runCtx, cancel := context.WithTimeout(groupCtx, time.Minute)
			defer cancel()
			removed, err := container.CleanupIdempotency(runCtx, now)
			if err != nil {
				cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
				return
			}
			if removed > 0 {
				cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received; draining requests")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Error("pdv stopped with error", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
	logger.Info("pdv stopped")
}

// runEvery invokes fn on each tick until ctx is cancelled.
func runEvery(ctx context.Context, interval time.Duration, fn func(now time.Time)) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case tick := <-ticker.C:
			fn(tick.UTC())
		}
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("PDV_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("PDV_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("PDV_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
