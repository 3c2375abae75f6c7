package settlement

import (
	"time"

	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
)

// RolloverIfUnpaid cancels a stale settlement whose payment deadline has
// passed and advances the win to the next eligible bidder. A paid order
// aborts the rollover untouched.
func (s *service) RolloverIfUnpaid(ctx context.Context, auctionID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	return s.rollover(ctx, auctionID, rolloverOpts{requireDeadline: true})
}

// ForceExpire is the admin path: it runs the same cancel-and-advance
// sequence immediately, without waiting for the payment deadline, and
// additionally tries to cancel the stale payment request at the gateway.
func (s *service) ForceExpire(ctx context.Context, actor auctions.Actor, auctionID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !actor.IsAdmin() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "force expire is admin only")
	}
	return s.rollover(ctx, auctionID, rolloverOpts{cancelGatewayLink: true})
}

type rolloverOpts struct {
	requireDeadline   bool
	cancelGatewayLink bool
}

func (s *service) rollover(ctx context.Context, auctionID uuid.UUID, opts rolloverOpts) error {
	var (
		staleLinkID *string
		nextWinner  *models.Bid
	)

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		auctionsRepo := s.auctionsRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		auction, err := auctionsRepo.FindAuctionForUpdate(ctx, auctionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.Status != enums.AuctionStatusSettled || auction.SettlementOrderID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction has no active settlement")
		}

		now := s.now()
		if opts.requireDeadline {
			if auction.PaymentDueAt == nil || auction.PaymentDueAt.After(now) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment window has not lapsed")
			}
		}

		order, err := ordersRepo.FindOrderForUpdate(ctx, *auction.SettlementOrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeInternal, "settlement order missing")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement order")
		}
		if order.IsPaid() {
			return nil
		}

		if err := ordersRepo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusCancelled,
			"payment_status": enums.PaymentStatusExpired,
			"cancelled_at":   now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel stale order")
		}
		staleLinkID = order.PaymentLinkID

		previousWinner := *auction.WinnerUserID

		exclude := map[uuid.UUID]struct{}{previousWinner: {}}
		holders, err := ordersRepo.ListUnpaidHolderIDs(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unpaid order holders")
		}
		for _, holder := range holders {
			exclude[holder] = struct{}{}
		}

		ledger, err := auctionsRepo.ListAuctionBids(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid ledger")
		}
		next := bids.NextEligibleWinner(ledger, exclude)

		if next == nil {
			// Exhausted: the lot is unsold.
			if err := auctionsRepo.UpdateAuction(ctx, auction.ID, map[string]any{
				"status":              enums.AuctionStatusEnded,
				"winner_user_id":      nil,
				"winning_bid_id":      nil,
				"payment_due_at":      nil,
				"settlement_order_id": nil,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark auction unsold")
			}
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventAuctionUnsold,
				AggregateType: enums.AggregateAuction,
				AggregateID:   auction.ID,
				Version:       1,
				Data:          payloads.AuctionUnsold{AuctionID: auction.ID},
			})
		}

		dueAt := now.Add(s.cfg.PaymentWindow)
		if err := auctionsRepo.UpdateAuction(ctx, auction.ID, map[string]any{
			"status":              enums.AuctionStatusEnded,
			"winner_user_id":      next.BidderUserID,
			"winning_bid_id":      next.ID,
			"payment_due_at":      dueAt,
			"settlement_order_id": nil,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote next bidder")
		}
		nextWinner = next

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionRolledOver,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			Data: payloads.AuctionRolledOver{
				AuctionID:        auction.ID,
				PreviousWinnerID: previousWinner,
				NewWinnerID:      next.BidderUserID,
				NewPaymentDueAt:  dueAt,
			},
		})
	})
	if err != nil {
		return err
	}

	// Best effort: the gateway link may already be expired or gone.
	if opts.cancelGatewayLink && staleLinkID != nil {
		timeout := s.cfg.GatewayCallTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		if cancelErr := s.gateway.CancelPaymentLink(callCtx, *staleLinkID); cancelErr != nil {
			s.logError(ctx, auctionID, "cancel stale payment link failed", cancelErr)
		}
		cancel()
	}

	if nextWinner == nil {
		return nil
	}
	if _, err := s.Settle(ctx, auctionID); err != nil {
		return err
	}
	return nil
}
