package paymentswebhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/orders"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	OrderRepo         orders.Repository
	AuctionRepo       auctions.Repository
	Outbox            outboxEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

type Service struct {
	orderRepo   orders.Repository
	auctionRepo auctions.Repository
	outbox      outboxEmitter
	txRunner    txRunner
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.AuctionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "auction repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		orderRepo:   params.OrderRepo,
		auctionRepo: params.AuctionRepo,
		outbox:      params.Outbox,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// HandleEvent processes checkout session events from the payment gateway.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "gateway event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		sess, err := decodeSession(event)
		if err != nil {
			return err
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			// completed fires for delayed payment methods before the money
			// clears; the async_payment_succeeded event follows it.
			return nil
		}
		return s.markPaid(ctx, sess)
	case stripe.EventTypeCheckoutSessionExpired:
		sess, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.markExpired(ctx, sess)
	default:
		return nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
	}
	if sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &sess, nil
}

func (s *Service) markPaid(ctx context.Context, sess *stripe.CheckoutSession) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := s.lookupOrder(ctx, orderRepo, sess)
		if err != nil {
			return err
		}
		if order == nil {
			s.logWarn(ctx, sess.ID, "payment event for unknown checkout session")
			return nil
		}
		if order.IsPaid() {
			return nil
		}

		paidAt := s.now()
		updates := map[string]any{
			"status":         enums.OrderStatusPaid,
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        paidAt,
		}
		if err := orderRepo.UpdateOrder(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}

		auctionRepo := s.auctionRepo.WithTx(tx)
		auction, err := auctionRepo.FindAuctionForUpdate(ctx, order.AuctionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction for paid order")
		}

		// A payment that lands after rollover moved the win elsewhere is
		// recorded on the order but must not flip the auction; the stale
		// buyer gets refunded out of band.
		if auction.Status != enums.AuctionStatusSettled ||
			auction.SettlementOrderID == nil ||
			*auction.SettlementOrderID != order.ID {
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			s.logg.Warn(logCtx, "payment received for order that no longer settles its auction")
			return nil
		}

		if err := auctionRepo.UpdateAuction(ctx, auction.ID, map[string]any{
			"status": enums.AuctionStatusSold,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark auction sold")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionSold,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Data: payloads.AuctionSold{
				AuctionID:   auction.ID,
				OrderID:     order.ID,
				BuyerUserID: order.BuyerUserID,
				PaidAt:      paidAt,
			},
		})
	})
}

func (s *Service) markExpired(ctx context.Context, sess *stripe.CheckoutSession) error {
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := s.lookupOrder(ctx, orderRepo, sess)
		if err != nil {
			return err
		}
		if order == nil {
			s.logWarn(ctx, sess.ID, "expiry event for unknown checkout session")
			return nil
		}
		if order.IsPaid() || order.Status == enums.OrderStatusCancelled {
			return nil
		}
		if order.PaymentStatus == enums.PaymentStatusExpired {
			return nil
		}

		// The order itself stays pending; the rollover pass decides whether
		// the win moves on once the payment deadline lapses.
		if err := orderRepo.UpdateOrder(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusExpired,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order payment expired")
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaymentExpired{
				OrderID:   order.ID,
				AuctionID: order.AuctionID,
			},
		})
	})
}

func (s *Service) lookupOrder(ctx context.Context, repo orders.Repository, sess *stripe.CheckoutSession) (*models.Order, error) {
	order, err := repo.FindByPaymentLinkID(ctx, sess.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment link")
	}
	if order == nil && sess.ClientReferenceID != "" {
		order, err = repo.FindByPaymentReference(ctx, sess.ClientReferenceID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment reference")
		}
	}
	if order == nil {
		return nil, nil
	}
	// Re-read under lock so concurrent webhook deliveries serialize.
	locked, err := repo.FindOrderForUpdate(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	return locked, nil
}

func (s *Service) logWarn(ctx context.Context, sessionID, msg string) {
	logCtx := s.logg.WithField(ctx, "payment_link_id", sessionID)
	s.logg.Warn(logCtx, msg)
}
