// Package settlement turns an ended auction with a winner into a payable
// order, and rolls the win forward when a winner fails to pay.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/internal/orders"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
	"github.com/bidhaus/bidhaus-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentGateway is the slice of the payment client settlement depends on.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, params stripe.PaymentLinkParams) (*stripe.PaymentLink, error)
	GetPaymentLink(ctx context.Context, id string) (*stripe.PaymentLink, error)
	CancelPaymentLink(ctx context.Context, id string) error
}

// Service orchestrates settlement and rollover for closed auctions.
type Service interface {
	Settle(ctx context.Context, auctionID uuid.UUID) (*models.Order, error)
	RolloverIfUnpaid(ctx context.Context, auctionID uuid.UUID) error
	ForceExpire(ctx context.Context, actor auctions.Actor, auctionID uuid.UUID) error
}

type service struct {
	auctionsRepo auctions.Repository
	ordersRepo   orders.Repository
	bidsRepo     bids.Repository
	tx           txRunner
	outbox       outboxPublisher
	gateway      PaymentGateway
	logg         *logger.Logger
	cfg          config.AuctionConfig
	now          func() time.Time
}

// Params collects the dependencies for the settlement service.
type Params struct {
	AuctionsRepo auctions.Repository
	OrdersRepo   orders.Repository
	BidsRepo     bids.Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Gateway      PaymentGateway
	Logger       *logger.Logger
	Config       config.AuctionConfig
	Now          func() time.Time
}

// NewService builds the settlement orchestrator.
func NewService(p Params) (Service, error) {
	if p.AuctionsRepo == nil {
		return nil, fmt.Errorf("auctions repository required")
	}
	if p.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.BidsRepo == nil {
		return nil, fmt.Errorf("bids repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		auctionsRepo: p.AuctionsRepo,
		ordersRepo:   p.OrdersRepo,
		bidsRepo:     p.BidsRepo,
		tx:           p.Tx,
		outbox:       p.Outbox,
		gateway:      p.Gateway,
		logg:         p.Logger,
		cfg:          p.Config,
		now:          p.Now,
	}, nil
}

// Settle creates the order and payment request for the auction's winner.
// Safe to invoke twice, concurrently included: the settlement_order_id
// compare-and-set guarantees at most one authoritative order survives.
func (s *service) Settle(ctx context.Context, auctionID uuid.UUID) (*models.Order, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}

	auction, err := s.auctionsRepo.FindAuction(ctx, auctionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}

	// Primary idempotency guard.
	if auction.SettlementOrderID != nil {
		return s.existingOrder(ctx, *auction.SettlementOrderID)
	}

	if auction.Status != enums.AuctionStatusEnded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not awaiting settlement")
	}
	if !auction.HasWinner() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction ended without a winner")
	}
	winnerID := *auction.WinnerUserID

	// Secondary guard: a live order already tied to this winner means a
	// prior settlement lost its settlement_order_id write; re-attach it.
	if prior, err := s.ordersRepo.FindNonCancelledByAuctionAndBuyer(ctx, auction.ID, winnerID); err == nil {
		if _, casErr := s.auctionsRepo.AttachSettlementOrder(ctx, auction.ID, prior.ID); casErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, casErr, "reattach settlement order")
		}
		return prior, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check prior orders")
	}

	winningBid, err := s.bidsRepo.FindBid(ctx, *auction.WinningBidID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "winning bid missing")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load winning bid")
	}

	pricing := computePricing(winningBid.AmountCents, winningBid.ShippingFeeCents, s.cfg.PlatformFeeBPS)

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		created, err := repo.CreateOrder(ctx, &models.Order{
			AuctionID:        auction.ID,
			BuyerUserID:      winnerID,
			SellerUserID:     auction.SellerUserID,
			Currency:         auction.Currency,
			SubtotalCents:    pricing.Subtotal,
			PlatformFeeCents: pricing.PlatformFee,
			ShippingFeeCents: pricing.Shipping,
			TotalCents:       pricing.Total,
			Status:           enums.OrderStatusPending,
			PaymentStatus:    enums.PaymentStatusPending,
		})
		if err != nil {
			return err
		}
		description := fmt.Sprintf("auction lot %s", auction.ItemID)
		if auction.Item != nil {
			description = auction.Item.Title
		}
		if _, err := repo.CreateOrderLine(ctx, &models.OrderLine{
			OrderID:             created.ID,
			ItemID:              auction.ItemID,
			Description:         description,
			AmountCents:         pricing.Subtotal,
			SellerEarningsCents: pricing.SellerEarnings,
		}); err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement order")
	}

	link, err := s.createPaymentLink(ctx, auction, order)
	if err != nil {
		// Settlement must not leave an order with no way to pay it.
		if delErr := s.ordersRepo.DeleteOrder(ctx, order.ID); delErr != nil {
			s.logError(ctx, auction.ID, "compensating order delete failed", delErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment request")
	}

	var settled *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)
		auctionsRepo := s.auctionsRepo.WithTx(tx)

		if err := ordersRepo.UpdateOrder(ctx, order.ID, map[string]any{
			"payment_link_id":   link.ID,
			"payment_reference": link.Reference,
			"checkout_url":      link.CheckoutURL,
		}); err != nil {
			return err
		}

		claimed, err := auctionsRepo.AttachSettlementOrder(ctx, auction.ID, order.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return errSettlementLost
		}

		dueAt := s.now().Add(s.cfg.PaymentWindow)
		if auction.PaymentDueAt != nil {
			dueAt = *auction.PaymentDueAt
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionSettled,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			Data: payloads.AuctionSettled{
				AuctionID:    auction.ID,
				OrderID:      order.ID,
				WinnerUserID: winnerID,
				TotalCents:   pricing.Total,
				PaymentDueAt: dueAt,
			},
		})
	})
	if err == errSettlementLost {
		// A concurrent settle won the compare-and-set; discard our artifacts
		// and hand back the authoritative order.
		if cancelErr := s.gateway.CancelPaymentLink(ctx, link.ID); cancelErr != nil {
			s.logError(ctx, auction.ID, "cancel duplicate payment link failed", cancelErr)
		}
		if delErr := s.ordersRepo.DeleteOrder(ctx, order.ID); delErr != nil {
			s.logError(ctx, auction.ID, "duplicate order delete failed", delErr)
		}
		refreshed, refErr := s.auctionsRepo.FindAuction(ctx, auction.ID)
		if refErr != nil || refreshed.SettlementOrderID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "auction settled concurrently")
		}
		return s.existingOrder(ctx, *refreshed.SettlementOrderID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach settlement order")
	}

	settled, err = s.ordersRepo.FindOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return settled, nil
}

var errSettlementLost = fmt.Errorf("settlement lost compare-and-set")

func (s *service) existingOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.ordersRepo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement order missing")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement order")
	}
	// Refresh the payment link status so callers see the gateway's view.
	if order.PaymentLinkID != nil {
		if link, err := s.gateway.GetPaymentLink(ctx, *order.PaymentLinkID); err == nil {
			switch link.Status {
			case stripe.PaymentLinkStatusPaid:
				order.PaymentStatus = enums.PaymentStatusPaid
			case stripe.PaymentLinkStatusExpired:
				order.PaymentStatus = enums.PaymentStatusExpired
			}
		} else {
			s.logError(ctx, order.AuctionID, "payment link refetch failed", err)
		}
	}
	return order, nil
}

func (s *service) createPaymentLink(ctx context.Context, auction *models.Auction, order *models.Order) (*stripe.PaymentLink, error) {
	timeout := s.cfg.GatewayCallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	description := fmt.Sprintf("auction %s settlement", auction.ID)
	if auction.Item != nil {
		description = auction.Item.Title
	}
	return s.gateway.CreatePaymentLink(callCtx, stripe.PaymentLinkParams{
		AmountCents: order.TotalCents,
		Currency:    string(order.Currency),
		Description: description,
		Reference:   order.ID.String(),
		ExpiresAt:   auction.PaymentDueAt,
		Metadata: map[string]string{
			"auction_id": auction.ID.String(),
			"order_id":   order.ID.String(),
		},
		IdempotencyKey: "settle-" + order.ID.String(),
	})
}

type pricing struct {
	Subtotal       int64
	PlatformFee    int64
	Shipping       int64
	Total          int64
	SellerEarnings int64
}

// computePricing derives the order money columns from the winning bid.
// Fee is basis points of the subtotal, rounded half up on the cent.
func computePricing(subtotalCents, shippingCents int64, feeBPS int) pricing {
	subtotal := decimal.NewFromInt(subtotalCents)
	fee := subtotal.
		Mul(decimal.NewFromInt(int64(feeBPS))).
		Div(decimal.NewFromInt(10000)).
		Round(0)
	feeCents := fee.IntPart()
	return pricing{
		Subtotal:       subtotalCents,
		PlatformFee:    feeCents,
		Shipping:       shippingCents,
		Total:          subtotalCents + shippingCents,
		SellerEarnings: subtotalCents - feeCents,
	}
}

func (s *service) logError(ctx context.Context, auctionID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithAuctionID(ctx, auctionID.String())
	s.logg.Error(logCtx, msg, err)
}
