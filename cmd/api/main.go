package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/novamart/novamart-backend/api/routes"
	"github.com/novamart/novamart-backend/internal/checkout"
	"github.com/novamart/novamart-backend/internal/cron"
	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/internal/refunds"
	gatewaywebhook "github.com/novamart/novamart-backend/internal/webhooks/gateway"
	"github.com/novamart/novamart-backend/pkg/config"
	"github.com/novamart/novamart-backend/pkg/db"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/metrics"
	"github.com/novamart/novamart-backend/pkg/migrate"
	"github.com/novamart/novamart-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(cfg.Gateway)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepository(dbClient.DB())
	ledger := inventory.NewLedger()
	ordersService := orders.NewService(logg, dbClient, ordersRepo, ledger, settlementMetrics)

	checkoutService := checkout.NewService(
		logg, dbClient, ordersRepo, ledger, gatewayClient,
		cfg.Settlement.PaymentWindow, cfg.Settlement.DefaultWarehouseCode,
	)

	refundService := refunds.NewService(
		logg, dbClient, ordersRepo, refunds.NewRepository(dbClient.DB()),
		gatewayClient, settlementMetrics,
	)

	webhookService, err := gatewaywebhook.NewService(gatewaywebhook.ServiceParams{
		Orders:    ordersService,
		OrdersRep: ordersRepo,
		Metrics:   settlementMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := gatewaywebhook.NewIdempotencyGuard(
		redisClient, cfg.Settlement.WebhookIdempotencyTTL, "gateway-webhook",
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	timeoutJob, err := cron.NewOrderTimeoutJob(cron.OrderTimeoutJobParams{
		Logger:               logg,
		DB:                   dbClient,
		Repo:                 ordersRepo,
		Ledger:               ledger,
		Metrics:              settlementMetrics,
		JobMetrics:           jobMetrics,
		DefaultWarehouseCode: cfg.Settlement.DefaultWarehouseCode,
		BatchSize:            cfg.Settlement.TimeoutSweepBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create timeout job", err)
		os.Exit(1)
	}

	reconciliationJob, err := cron.NewReconciliationJob(cron.ReconciliationJobParams{
		Logger:     logg,
		Repo:       ordersRepo,
		Gateway:    gatewayClient,
		Metrics:    settlementMetrics,
		JobMetrics: jobMetrics,
		BatchSize:  cfg.Settlement.ReconciliationBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation job", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient,
			checkoutService, refundService,
			webhookService, webhookGuard,
			timeoutJob, reconciliationJob,
		),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}
