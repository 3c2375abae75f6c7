package auctions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox/payloads"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the auction state machine. Every transition is guarded here;
// nothing else in the system writes the status column apart from settlement
// and rollover, which hold the same row lock discipline.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Auction, error)
	Update(ctx context.Context, input UpdateInput) (*models.Auction, error)
	Get(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	List(ctx context.Context, params pagination.Params, filters ListFilters) (*AuctionList, error)
	ActivateNow(ctx context.Context, actor Actor, auctionID uuid.UUID) error
	Pause(ctx context.Context, actor Actor, auctionID uuid.UUID) error
	Resume(ctx context.Context, actor Actor, auctionID uuid.UUID) error
	Cancel(ctx context.Context, input CancelInput) error
	ActivateDue(ctx context.Context, now time.Time) (int, error)
	CloseDue(ctx context.Context, now time.Time) (int, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	cfg    config.AuctionConfig
	now    func() time.Time
}

// Params collects the dependencies for the auction service.
type Params struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Config config.AuctionConfig
	Now    func() time.Time
}

// NewService builds the auction state machine service.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("auctions repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		repo:   p.Repo,
		tx:     p.Tx,
		outbox: p.Outbox,
		logg:   p.Logger,
		cfg:    p.Config,
		now:    p.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Auction, error) {
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Actor.Role != enums.MemberRoleSeller && !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only sellers can create auctions")
	}
	if input.Title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title required")
	}
	if input.StartPriceCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start price must be positive")
	}
	if input.MinIncrementCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum increment cannot be negative")
	}
	if input.ReservePriceCents != nil && *input.ReservePriceCents < input.StartPriceCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserve price cannot be below start price")
	}
	if !input.EndAt.After(input.StartAt) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
	}

	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	allowUpdates := true
	if input.AllowBidUpdates != nil {
		allowUpdates = *input.AllowBidUpdates
	}

	var created *models.Auction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.CreateItem(ctx, &models.AuctionItem{
			SellerUserID: input.Actor.UserID,
			Title:        input.Title,
			Description:  input.Description,
			MediaURLs:    input.MediaURLs,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
		}

		auction, err := repo.CreateAuction(ctx, &models.Auction{
			ItemID:            item.ID,
			SellerUserID:      input.Actor.UserID,
			Currency:          currency,
			StartPriceCents:   input.StartPriceCents,
			ReservePriceCents: input.ReservePriceCents,
			MinIncrementCents: input.MinIncrementCents,
			StartAt:           input.StartAt,
			EndAt:             input.EndAt,
			SingleBidOnly:     input.SingleBidOnly,
			AllowBidUpdates:   allowUpdates,
			Status:            enums.AuctionStatusScheduled,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create auction")
		}
		auction.Item = item
		created = auction
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*models.Auction, error) {
	if input.AuctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var updated *models.Auction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := s.loadForUpdate(ctx, repo, input.AuctionID)
		if err != nil {
			return err
		}
		if !input.Actor.IsAdmin() && auction.SellerUserID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "auction does not belong to caller")
		}
		if auction.Status == enums.AuctionStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled auctions cannot be edited")
		}
		if !input.Actor.IsAdmin() {
			if auction.Status == enums.AuctionStatusEnded ||
				auction.Status == enums.AuctionStatusSettled ||
				auction.Status == enums.AuctionStatusSold {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "auction has already ended")
			}
			liveBids, err := repo.CountLiveBids(ctx, auction.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bids")
			}
			if liveBids > 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "auction terms are locked once bids exist")
			}
		}

		updates := map[string]any{}
		startAt, endAt := auction.StartAt, auction.EndAt
		if input.StartAt != nil {
			startAt = *input.StartAt
			updates["start_at"] = startAt
		}
		if input.EndAt != nil {
			endAt = *input.EndAt
			updates["end_at"] = endAt
		}
		if !endAt.After(startAt) {
			return pkgerrors.New(pkgerrors.CodeValidation, "end time must be after start time")
		}
		startPrice := auction.StartPriceCents
		if input.StartPriceCents != nil {
			if *input.StartPriceCents <= 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "start price must be positive")
			}
			startPrice = *input.StartPriceCents
			updates["start_price_cents"] = startPrice
		}
		if input.ClearReserve {
			updates["reserve_price_cents"] = gorm.Expr("NULL")
		} else if input.ReservePriceCents != nil {
			if *input.ReservePriceCents < startPrice {
				return pkgerrors.New(pkgerrors.CodeValidation, "reserve price cannot be below start price")
			}
			updates["reserve_price_cents"] = *input.ReservePriceCents
		}
		if input.MinIncrementCents != nil {
			if *input.MinIncrementCents < 0 {
				return pkgerrors.New(pkgerrors.CodeValidation, "minimum increment cannot be negative")
			}
			updates["min_increment_cents"] = *input.MinIncrementCents
		}
		if len(updates) == 0 {
			updated = auction
			return nil
		}
		if err := repo.UpdateAuction(ctx, auction.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update auction")
		}
		refreshed, err := repo.FindAuction(ctx, auction.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload auction")
		}
		updated = refreshed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	auction, err := s.repo.FindAuction(ctx, auctionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}
	return auction, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters ListFilters) (*AuctionList, error) {
	list, err := s.repo.ListAuctions(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auctions")
	}
	return list, nil
}

func (s *service) ActivateNow(ctx context.Context, actor Actor, auctionID uuid.UUID) error {
	return s.transition(ctx, actor, auctionID, func(auction *models.Auction, now time.Time) (map[string]any, *outbox.DomainEvent, error) {
		if auction.Status == enums.AuctionStatusActive {
			return nil, nil, nil
		}
		if auction.Status != enums.AuctionStatusScheduled {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only scheduled auctions can be activated")
		}
		if !now.Before(auction.EndAt) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction end time has passed")
		}
		updates := map[string]any{"status": enums.AuctionStatusActive}
		if now.Before(auction.StartAt) {
			updates["start_at"] = now
		}
		return updates, s.activatedEvent(auction, auction.EndAt), nil
	})
}

func (s *service) Pause(ctx context.Context, actor Actor, auctionID uuid.UUID) error {
	return s.transition(ctx, actor, auctionID, func(auction *models.Auction, now time.Time) (map[string]any, *outbox.DomainEvent, error) {
		if auction.Status != enums.AuctionStatusActive {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active auctions can be paused")
		}
		if !now.Before(auction.EndAt) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction end time has passed")
		}
		return map[string]any{"status": enums.AuctionStatusPaused}, nil, nil
	})
}

func (s *service) Resume(ctx context.Context, actor Actor, auctionID uuid.UUID) error {
	return s.transition(ctx, actor, auctionID, func(auction *models.Auction, now time.Time) (map[string]any, *outbox.DomainEvent, error) {
		if auction.Status != enums.AuctionStatusPaused {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paused auctions can resume")
		}
		if !now.Before(auction.EndAt) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction end time has passed")
		}
		return map[string]any{"status": enums.AuctionStatusActive}, nil, nil
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	if input.AuctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := s.loadForUpdate(ctx, repo, input.AuctionID)
		if err != nil {
			return err
		}
		if !input.Actor.IsAdmin() && auction.SellerUserID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "auction does not belong to caller")
		}

		switch auction.Status {
		case enums.AuctionStatusCancelled:
			// Repeat cancels are acknowledged, not rejected.
			return nil
		case enums.AuctionStatusEnded, enums.AuctionStatusSettled, enums.AuctionStatusSold:
			// Terminal for cancellation regardless of role: from ended
			// onward the winner linkage and any settlement order are
			// authoritative, and only the rollover path may unwind them.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "auction can no longer be cancelled")
		}

		if !input.Actor.IsAdmin() {
			switch auction.Status {
			case enums.AuctionStatusScheduled, enums.AuctionStatusPaused:
			case enums.AuctionStatusActive:
				liveBids, err := repo.CountLiveBids(ctx, auction.ID)
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bids")
				}
				if liveBids > 0 {
					return pkgerrors.New(pkgerrors.CodeForbidden, "active auctions with bids can only be cancelled by an admin")
				}
			default:
				return pkgerrors.New(pkgerrors.CodeForbidden, "auction can no longer be cancelled by the seller")
			}
		}

		now := s.now()
		updates := map[string]any{
			"status":       enums.AuctionStatusCancelled,
			"cancelled_at": now,
			"cancelled_by": input.Actor.UserID,
		}
		if input.Reason != nil {
			updates["cancel_reason"] = *input.Reason
		}
		if err := repo.UpdateAuction(ctx, auction.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel auction")
		}

		reason := ""
		if input.Reason != nil {
			reason = *input.Reason
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionCancelled,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: payloads.AuctionCancelled{
				AuctionID:   auction.ID,
				CancelledBy: input.Actor.UserID,
				Reason:      reason,
			},
		})
	})
}

// ActivateDue flips every scheduled auction whose start time has passed to
// active. Failures are isolated per auction so one bad row cannot stall the
// rest of the batch.
func (s *service) ActivateDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.FindDueForActivation(ctx, now, s.cfg.CloseBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find due activations")
	}

	activated := 0
	var errs error
	for _, candidate := range due {
		auctionID := candidate.ID
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			auction, err := repo.FindAuctionForUpdate(ctx, auctionID)
			if err != nil {
				return err
			}
			if auction.Status != enums.AuctionStatusScheduled || now.Before(auction.StartAt) {
				return nil
			}
			if err := repo.UpdateAuction(ctx, auction.ID, map[string]any{"status": enums.AuctionStatusActive}); err != nil {
				return err
			}
			activated++
			return s.outbox.EmitIfNotExists(ctx, tx, *s.activatedEvent(auction, auction.EndAt))
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("activate %s: %w", auctionID, err))
			s.logError(ctx, auctionID, "auction activation failed", err)
		}
	}
	return activated, errs
}

// CloseDue ends every auction past its end time and asks the ledger for a
// winner. Paused auctions past their end close the same way active ones do,
// and a scheduled auction whose whole window elapsed without activation
// closes with no winner.
func (s *service) CloseDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.FindDueForClose(ctx, now, s.cfg.CloseBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find due closes")
	}

	closed := 0
	var errs error
	for _, candidate := range due {
		auctionID := candidate.ID
		if err := s.closeOne(ctx, auctionID, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", auctionID, err))
			s.logError(ctx, auctionID, "auction close failed", err)
			continue
		}
		closed++
	}
	return closed, errs
}

func (s *service) closeOne(ctx context.Context, auctionID uuid.UUID, now time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := repo.FindAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		switch auction.Status {
		case enums.AuctionStatusActive, enums.AuctionStatusPaused, enums.AuctionStatusScheduled:
		default:
			return nil
		}
		if now.Before(auction.EndAt) {
			return nil
		}

		ledger, err := repo.ListAuctionBids(ctx, auction.ID)
		if err != nil {
			return err
		}
		winner := bids.Winner(ledger)
		reserveMet := winner != nil &&
			(auction.ReservePriceCents == nil || winner.AmountCents >= *auction.ReservePriceCents)

		updates := map[string]any{"status": enums.AuctionStatusEnded}
		event := payloads.AuctionEnded{
			AuctionID:  auction.ID,
			ReserveMet: reserveMet,
			EndedAt:    now,
		}
		if reserveMet {
			dueAt := now.Add(s.cfg.PaymentWindow)
			updates["winner_user_id"] = winner.BidderUserID
			updates["winning_bid_id"] = winner.ID
			updates["payment_due_at"] = dueAt
			winnerID := winner.BidderUserID
			amount := winner.AmountCents
			event.WinnerUserID = &winnerID
			event.WinningCents = &amount
		}

		if err := repo.UpdateAuction(ctx, auction.ID, updates); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionEnded,
			AggregateType: enums.AggregateAuction,
			AggregateID:   auction.ID,
			Version:       1,
			Data:          event,
		})
	})
}

type transitionFn func(auction *models.Auction, now time.Time) (map[string]any, *outbox.DomainEvent, error)

func (s *service) transition(ctx context.Context, actor Actor, auctionID uuid.UUID, fn transitionFn) error {
	if auctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id required")
	}
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		auction, err := s.loadForUpdate(ctx, repo, auctionID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && auction.SellerUserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "auction does not belong to caller")
		}

		updates, event, err := fn(auction, s.now())
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := repo.UpdateAuction(ctx, auction.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update auction status")
		}
		if event != nil {
			return s.outbox.EmitIfNotExists(ctx, tx, *event)
		}
		return nil
	})
}

func (s *service) loadForUpdate(ctx context.Context, repo Repository, auctionID uuid.UUID) (*models.Auction, error) {
	auction, err := repo.FindAuctionForUpdate(ctx, auctionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}
	return auction, nil
}

func (s *service) activatedEvent(auction *models.Auction, endAt time.Time) *outbox.DomainEvent {
	return &outbox.DomainEvent{
		EventType:     enums.EventAuctionActivated,
		AggregateType: enums.AggregateAuction,
		AggregateID:   auction.ID,
		Version:       1,
		Data: payloads.AuctionActivated{
			AuctionID: auction.ID,
			ItemID:    auction.ItemID,
			SellerID:  auction.SellerUserID,
			EndAt:     endAt,
		},
	}
}

func (s *service) logError(ctx context.Context, auctionID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithAuctionID(ctx, auctionID.String())
	s.logg.Error(logCtx, msg, err)
}
