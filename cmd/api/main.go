package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/bidhaus/bidhaus-backend/api/routes"
	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/internal/orders"
	"github.com/bidhaus/bidhaus-backend/internal/settlement"
	paymentswebhook "github.com/bidhaus/bidhaus-backend/internal/webhooks/payments"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/migrate"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/redis"
	"github.com/bidhaus/bidhaus-backend/pkg/stripe"
)

const webhookGuardTTL = 24 * time.Hour

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

	bidService, err := bids.NewService(bids.Params{
		Repo: bidsRepo,
		Tx:   dbClient,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create bid service", err)
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

	paymentWebhookService, err := paymentswebhook.NewService(paymentswebhook.ServiceParams{
		OrderRepo:         ordersRepo,
		AuctionRepo:       auctionsRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook service", err)
		os.Exit(1)
	}

	paymentWebhookGuard, err := paymentswebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "payments-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			auctionService,
			bidService,
			settlementService,
			stripeClient,
			paymentWebhookService,
			paymentWebhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
