package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bidhaus/bidhaus-backend/api/controllers"
	webhookcontrollers "github.com/bidhaus/bidhaus-backend/api/controllers/webhooks"
	"github.com/bidhaus/bidhaus-backend/api/middleware"
	auctionsvc "github.com/bidhaus/bidhaus-backend/internal/auctions"
	bidsvc "github.com/bidhaus/bidhaus-backend/internal/bids"
	settlementsvc "github.com/bidhaus/bidhaus-backend/internal/settlement"
	paymentswebhook "github.com/bidhaus/bidhaus-backend/internal/webhooks/payments"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/redis"
	"github.com/bidhaus/bidhaus-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	auctionService auctionsvc.Service,
	bidService bidsvc.Service,
	settlementService settlementsvc.Service,
	stripeClient *stripe.Client,
	paymentWebhookService *paymentswebhook.Service,
	paymentWebhookGuard *paymentswebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(paymentWebhookService, stripeClient, paymentWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/auctions", func(r chi.Router) {
			r.Get("/", controllers.ListAuctions(auctionService, logg))
			r.Post("/", controllers.CreateAuction(auctionService, logg))

			r.Route("/{auctionId}", func(r chi.Router) {
				r.Get("/", controllers.GetAuction(auctionService, logg))
				r.Patch("/", controllers.UpdateAuction(auctionService, logg))
				r.Post("/activate", controllers.ActivateAuction(auctionService, logg))
				r.Post("/pause", controllers.PauseAuction(auctionService, logg))
				r.Post("/resume", controllers.ResumeAuction(auctionService, logg))
				r.Post("/cancel", controllers.CancelAuction(auctionService, logg))

				r.Post("/bids", controllers.PlaceBid(bidService, logg))
				r.Delete("/bids/{bidId}", controllers.WithdrawBid(bidService, logg))
				r.Get("/standing", controllers.MyStanding(bidService, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.MemberRoleAdmin), logg))

		r.Route("/auctions/{auctionId}", func(r chi.Router) {
			r.Post("/settle", controllers.SettleAuction(settlementService, logg))
			r.Post("/expire-payment", controllers.ExpireAuctionPayment(settlementService, logg))
		})
	})

	return r
}
