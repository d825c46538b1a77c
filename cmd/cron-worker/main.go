package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/novamart/novamart-backend/internal/cron"
	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/config"
	"github.com/novamart/novamart-backend/pkg/db"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/metrics"
	"github.com/novamart/novamart-backend/pkg/migrate"
	"github.com/novamart/novamart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(timeoutJob, reconciliationJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Settlement.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
