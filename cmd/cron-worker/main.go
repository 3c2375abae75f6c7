package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/internal/cron"
	"github.com/bidhaus/bidhaus-backend/internal/orders"
	"github.com/bidhaus/bidhaus-backend/internal/settlement"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db"
	"github.com/bidhaus/bidhaus-backend/pkg/env"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/metrics"
	"github.com/bidhaus/bidhaus-backend/pkg/migrate"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/redis"
	"github.com/bidhaus/bidhaus-backend/pkg/stripe"
)

const (
	lockKeyFormat      = "bh:cron-worker:lock:%s"
	defaultMetricsPort = "9091"
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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway", err)
		os.Exit(1)
	}

	auctionsRepo := auctions.NewRepository(dbClient.DB())
	bidsRepo := bids.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	auctionService, err := auctions.NewService(auctions.Params{
		Repo:   auctionsRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
		Config: cfg.Auction,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auction service", err)
		os.Exit(1)
	}

	settlementService, err := settlement.NewService(settlement.Params{
		AuctionsRepo: auctionsRepo,
		OrdersRepo:   ordersRepo,
		BidsRepo:     bidsRepo,
		Tx:           dbClient,
		Outbox:       outboxService,
		Gateway:      stripeClient,
		Logger:       logg,
		Config:       cfg.Auction,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	activateJob, err := cron.NewActivateJob(cron.ActivateJobParams{Logger: logg, Service: auctionService})
	if err != nil {
		logg.Error(context.Background(), "failed to create activate job", err)
		os.Exit(1)
	}
	closeJob, err := cron.NewCloseJob(cron.CloseJobParams{Logger: logg, Service: auctionService})
	if err != nil {
		logg.Error(context.Background(), "failed to create close job", err)
		os.Exit(1)
	}
	settleJob, err := cron.NewSettleJob(cron.SettleJobParams{
		Logger:     logg,
		Repository: auctionsRepo,
		Settlement: settlementService,
		BatchSize:  cfg.Auction.CloseBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settle job", err)
		os.Exit(1)
	}
	rolloverJob, err := cron.NewRolloverJob(cron.RolloverJobParams{
		Logger:     logg,
		Repository: auctionsRepo,
		Settlement: settlementService,
		BatchSize:  cfg.Auction.CloseBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rollover job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	go serveMetrics(logg)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	// Order matters: activation before close, close before settle, settle
	// before rollover, so one cycle moves an auction as far as it can go.
	registry := cron.NewRegistry(activateJob, closeJob, settleJob, rolloverJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Auction.CronInterval,
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

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func serveMetrics(logg *logger.Logger) {
	addr := ":" + env.Get("METRICS_PORT", defaultMetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logg.Error(context.Background(), "metrics listener stopped", err)
	}
}
