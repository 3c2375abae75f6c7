package bids

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the bid admission boundary. Every read it exposes is scoped to
// the calling bidder's own rows so amounts stay blind between bidders.
type Service interface {
	PlaceBid(ctx context.Context, input PlaceBidInput) (*models.Bid, error)
	Withdraw(ctx context.Context, input WithdrawInput) error
	MyStanding(ctx context.Context, auctionID, bidderUserID uuid.UUID) (*Standing, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// Params collects the dependencies for the admission service.
type Params struct {
	Repo Repository
	Tx   txRunner
	Now  func() time.Time
}

// NewService builds a bid admission service with the required dependencies.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("bids repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{repo: p.Repo, tx: p.Tx, now: p.Now}, nil
}

func (s *service) PlaceBid(ctx context.Context, input PlaceBidInput) (*models.Bid, error) {
	if input.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if input.BidderUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid amount must be positive")
	}

	// Replayed keys return the stored bid unchanged, with no re-validation.
	if input.IdempotencyKey != nil && *input.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, input.AuctionID, input.BidderUserID, *input.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
		}
	}

	var placed *models.Bid
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		auction, err := repo.FindAuctionForUpdate(ctx, input.AuctionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}

		now := s.now()
		if now.Before(auction.StartAt) {
			return pkgerrors.New(pkgerrors.CodeValidation, "auction has not started")
		}
		if !now.Before(auction.EndAt) {
			return pkgerrors.New(pkgerrors.CodeValidation, "bidding window has closed")
		}

		switch auction.Status {
		case enums.AuctionStatusActive:
		case enums.AuctionStatusPaused:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is paused")
		case enums.AuctionStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is cancelled")
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not accepting bids")
		}

		ownRows, err := repo.ListBidderBids(ctx, input.AuctionID, input.BidderUserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bidder history")
		}
		ownBest := bidderBest(ownRows)

		if auction.SingleBidOnly && len(ownRows) > 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "auction accepts a single bid per bidder")
		}
		if !auction.AllowBidUpdates && ownBest != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "bid updates are not allowed on this auction")
		}

		// Amount policy only ever looks at the bidder's own ledger.
		if ownBest == nil {
			if input.AmountCents < auction.StartPriceCents {
				return pkgerrors.New(pkgerrors.CodeValidation, "bid is below the starting price")
			}
		} else {
			floor := ownBest.AmountCents + auction.MinIncrementCents
			if input.AmountCents < floor {
				return pkgerrors.New(pkgerrors.CodeValidation, "bid must raise your previous bid by the minimum increment")
			}
		}

		bid := &models.Bid{
			AuctionID:         input.AuctionID,
			BidderUserID:      input.BidderUserID,
			AmountCents:       input.AmountCents,
			IdempotencyKey:    input.IdempotencyKey,
			ShippingAddressID: input.ShippingAddressID,
			Courier:           input.Courier,
			CourierService:    input.CourierService,
			ShippingFeeCents:  input.ShippingFeeCents,
		}
		created, err := repo.CreateBid(ctx, bid)
		if err != nil {
			if db.IsUniqueViolation(err, "ux_bids_idempotency") && input.IdempotencyKey != nil {
				// Lost the race against our own retry; return the stored row.
				existing, findErr := repo.FindByIdempotencyKey(ctx, input.AuctionID, input.BidderUserID, *input.IdempotencyKey)
				if findErr != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "idempotent bid lookup")
				}
				placed = existing
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist bid")
		}
		placed = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (s *service) Withdraw(ctx context.Context, input WithdrawInput) error {
	if input.AuctionID == uuid.Nil || input.BidID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id and bid id required")
	}
	if input.BidderUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		auction, err := repo.FindAuctionForUpdate(ctx, input.AuctionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
		}
		if auction.Status != enums.AuctionStatusActive && auction.Status != enums.AuctionStatusPaused {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "bids can only be withdrawn before the auction closes")
		}

		bid, err := repo.FindBid(ctx, input.BidID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "bid not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bid")
		}
		if bid.AuctionID != input.AuctionID {
			return pkgerrors.New(pkgerrors.CodeValidation, "bid does not belong to auction")
		}
		if bid.BidderUserID != input.BidderUserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "bid does not belong to caller")
		}
		if bid.IsWithdrawn {
			return nil
		}
		if err := repo.MarkWithdrawn(ctx, bid.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "withdraw bid")
		}
		return nil
	})
}

func (s *service) MyStanding(ctx context.Context, auctionID, bidderUserID uuid.UUID) (*Standing, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if bidderUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	auction, err := s.repo.FindAuction(ctx, auctionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}

	ownRows, err := s.repo.ListBidderBids(ctx, auctionID, bidderUserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bidder history")
	}

	standing := &Standing{AuctionID: auctionID}
	ownBest := bidderBest(ownRows)
	live := 0
	for _, row := range ownRows {
		if !row.IsWithdrawn {
			live++
		}
	}
	standing.LiveBidCount = live

	if ownBest != nil {
		id := ownBest.ID
		amount := ownBest.AmountCents
		standing.HighestBidID = &id
		standing.HighestCents = &amount
		standing.NextMinimumCents = ownBest.AmountCents + auction.MinIncrementCents
	} else {
		standing.NextMinimumCents = auction.StartPriceCents
	}

	now := s.now()
	switch {
	case auction.Status != enums.AuctionStatusActive:
		standing.Reason = "auction is not active"
	case now.Before(auction.StartAt):
		standing.Reason = "auction has not started"
	case !now.Before(auction.EndAt):
		standing.Reason = "bidding window has closed"
	case auction.SingleBidOnly && len(ownRows) > 0:
		standing.Reason = "auction accepts a single bid per bidder"
	case !auction.AllowBidUpdates && ownBest != nil:
		standing.Reason = "bid updates are not allowed on this auction"
	default:
		standing.CanBid = true
	}
	return standing, nil
}

// bidderBest returns the bidder's own best live row from their history.
func bidderBest(rows []models.Bid) *models.Bid {
	var best *models.Bid
	for i := range rows {
		row := &rows[i]
		if row.IsWithdrawn {
			continue
		}
		if best == nil || row.AmountCents > best.AmountCents ||
			(row.AmountCents == best.AmountCents && row.CreatedAt.Before(best.CreatedAt)) {
			best = row
		}
	}
	return best
}
