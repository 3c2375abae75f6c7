package auctions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/config"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

type stubAuctionsRepo struct {
	items    map[uuid.UUID]*models.AuctionItem
	auctions map[uuid.UUID]*models.Auction
	ledger   []models.Bid
}

func newStubAuctionsRepo() *stubAuctionsRepo {
	return &stubAuctionsRepo{
		items:    map[uuid.UUID]*models.AuctionItem{},
		auctions: map[uuid.UUID]*models.Auction{},
	}
}

func (s *stubAuctionsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAuctionsRepo) CreateItem(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *stubAuctionsRepo) CreateAuction(ctx context.Context, auction *models.Auction) (*models.Auction, error) {
	if auction.ID == uuid.Nil {
		auction.ID = uuid.New()
	}
	s.auctions[auction.ID] = auction
	return auction, nil
}

func (s *stubAuctionsRepo) FindAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	auction, ok := s.auctions[auctionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *auction
	return &copied, nil
}

func (s *stubAuctionsRepo) FindAuctionForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	return s.FindAuction(ctx, auctionID)
}

func (s *stubAuctionsRepo) UpdateAuction(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error {
	auction, ok := s.auctions[auctionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			if v, ok := value.(enums.AuctionStatus); ok {
				auction.Status = v
			}
		case "start_at":
			if v, ok := value.(time.Time); ok {
				auction.StartAt = v
			}
		case "end_at":
			if v, ok := value.(time.Time); ok {
				auction.EndAt = v
			}
		case "start_price_cents":
			if v, ok := value.(int64); ok {
				auction.StartPriceCents = v
			}
		case "min_increment_cents":
			if v, ok := value.(int64); ok {
				auction.MinIncrementCents = v
			}
		case "winner_user_id":
			if v, ok := value.(uuid.UUID); ok {
				auction.WinnerUserID = &v
			}
		case "winning_bid_id":
			if v, ok := value.(uuid.UUID); ok {
				auction.WinningBidID = &v
			}
		case "payment_due_at":
			if v, ok := value.(time.Time); ok {
				auction.PaymentDueAt = &v
			}
		case "cancelled_at":
			if v, ok := value.(time.Time); ok {
				auction.CancelledAt = &v
			}
		case "cancelled_by":
			if v, ok := value.(uuid.UUID); ok {
				auction.CancelledBy = &v
			}
		case "cancel_reason":
			if v, ok := value.(string); ok {
				auction.CancelReason = &v
			}
		}
	}
	return nil
}

func (s *stubAuctionsRepo) AttachSettlementOrder(ctx context.Context, auctionID, orderID uuid.UUID) (bool, error) {
	auction, ok := s.auctions[auctionID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if auction.SettlementOrderID != nil {
		return false, nil
	}
	auction.SettlementOrderID = &orderID
	auction.Status = enums.AuctionStatusSettled
	return true, nil
}

func (s *stubAuctionsRepo) CountLiveBids(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	var count int64
	for _, bid := range s.ledger {
		if bid.AuctionID == auctionID && !bid.IsWithdrawn {
			count++
		}
	}
	return count, nil
}

func (s *stubAuctionsRepo) ListAuctionBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	out := []models.Bid{}
	for _, bid := range s.ledger {
		if bid.AuctionID == auctionID {
			out = append(out, bid)
		}
	}
	return out, nil
}

func (s *stubAuctionsRepo) ListAuctions(ctx context.Context, params pagination.Params, filters ListFilters) (*AuctionList, error) {
	out := []models.Auction{}
	for _, auction := range s.auctions {
		out = append(out, *auction)
	}
	return &AuctionList{Auctions: out}, nil
}

func (s *stubAuctionsRepo) FindDueForActivation(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	out := []models.Auction{}
	for _, auction := range s.auctions {
		if auction.Status == enums.AuctionStatusScheduled && !now.Before(auction.StartAt) && auction.EndAt.After(now) {
			out = append(out, *auction)
		}
	}
	return out, nil
}

func (s *stubAuctionsRepo) FindDueForClose(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	out := []models.Auction{}
	for _, auction := range s.auctions {
		closable := auction.Status == enums.AuctionStatusActive ||
			auction.Status == enums.AuctionStatusPaused ||
			auction.Status == enums.AuctionStatusScheduled
		if closable && !auction.EndAt.After(now) {
			out = append(out, *auction)
		}
	}
	return out, nil
}

func (s *stubAuctionsRepo) FindSettlementCandidates(ctx context.Context, limit int) ([]models.Auction, error) {
	out := []models.Auction{}
	for _, auction := range s.auctions {
		if auction.Status == enums.AuctionStatusEnded && auction.WinnerUserID != nil && auction.SettlementOrderID == nil {
			out = append(out, *auction)
		}
	}
	return out, nil
}

func (s *stubAuctionsRepo) FindRolloverCandidates(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	out := []models.Auction{}
	for _, auction := range s.auctions {
		if auction.Status == enums.AuctionStatusSettled && auction.PaymentDueAt != nil && !auction.PaymentDueAt.After(now) {
			out = append(out, *auction)
		}
	}
	return out, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	for _, existing := range s.events {
		if existing.EventType == event.EventType && existing.AggregateID == event.AggregateID {
			return nil
		}
	}
	s.events = append(s.events, event)
	return nil
}

func (s *stubOutbox) has(eventType enums.OutboxEventType) bool {
	for _, event := range s.events {
		if event.EventType == eventType {
			return true
		}
	}
	return false
}

func newAuctionService(t *testing.T, repo Repository, ob outboxPublisher, now time.Time) Service {
	t.Helper()
	svc, err := NewService(Params{
		Repo:   repo,
		Tx:     stubTxRunner{},
		Outbox: ob,
		Config: config.AuctionConfig{
			PaymentWindow:  48 * time.Hour,
			PlatformFeeBPS: 500,
			CloseBatchSize: 100,
		},
		Now: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected coded error, got %v", err)
	}
	if typed.Code() != code {
		t.Fatalf("expected code %s, got %s (%v)", code, typed.Code(), err)
	}
}

func seedAuction(repo *stubAuctionsRepo, status enums.AuctionStatus, now time.Time) *models.Auction {
	auction := &models.Auction{
		ID:                uuid.New(),
		ItemID:            uuid.New(),
		SellerUserID:      uuid.New(),
		StartPriceCents:   1000,
		MinIncrementCents: 100,
		StartAt:           now.Add(-time.Hour),
		EndAt:             now.Add(time.Hour),
		AllowBidUpdates:   true,
		Status:            status,
	}
	repo.auctions[auction.ID] = auction
	return auction
}

func TestCreateRejectsInvalidWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	svc := newAuctionService(t, repo, &stubOutbox{}, now)

	_, err := svc.Create(context.Background(), CreateInput{
		Actor:           Actor{UserID: uuid.New(), Role: enums.MemberRoleSeller},
		Title:           "vintage lens",
		StartPriceCents: 1000,
		StartAt:         now.Add(2 * time.Hour),
		EndAt:           now.Add(time.Hour),
	})
	expectCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateRequiresSellerRole(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	svc := newAuctionService(t, repo, &stubOutbox{}, now)

	_, err := svc.Create(context.Background(), CreateInput{
		Actor:           Actor{UserID: uuid.New(), Role: enums.MemberRoleBuyer},
		Title:           "vintage lens",
		StartPriceCents: 1000,
		StartAt:         now,
		EndAt:           now.Add(time.Hour),
	})
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestCancelSellerVersusAdmin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	ob := &stubOutbox{}
	svc := newAuctionService(t, repo, ob, now)

	auction := seedAuction(repo, enums.AuctionStatusActive, now)
	repo.ledger = append(repo.ledger, models.Bid{
		ID: uuid.New(), AuctionID: auction.ID, BidderUserID: uuid.New(), AmountCents: 1000, CreatedAt: now,
	})

	// Seller cannot cancel an active auction holding a live bid.
	err := svc.Cancel(context.Background(), CancelInput{
		Actor:     Actor{UserID: auction.SellerUserID, Role: enums.MemberRoleSeller},
		AuctionID: auction.ID,
	})
	expectCode(t, err, pkgerrors.CodeForbidden)

	// Admin can.
	if err := svc.Cancel(context.Background(), CancelInput{
		Actor:     Actor{UserID: uuid.New(), Role: enums.MemberRoleAdmin},
		AuctionID: auction.ID,
	}); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if repo.auctions[auction.ID].Status != enums.AuctionStatusCancelled {
		t.Fatalf("auction should be cancelled")
	}
	if !ob.has(enums.EventAuctionCancelled) {
		t.Fatalf("cancellation event missing")
	}
}

func TestCancelTerminalStatuses(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status enums.AuctionStatus
	}{
		{"ended", enums.AuctionStatusEnded},
		{"settled", enums.AuctionStatusSettled},
		{"sold", enums.AuctionStatusSold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubAuctionsRepo()
			svc := newAuctionService(t, repo, &stubOutbox{}, now)

			auction := seedAuction(repo, tc.status, now)
			winnerID := uuid.New()
			bidID := uuid.New()
			orderID := uuid.New()
			auction.EndAt = now.Add(-time.Hour)
			auction.WinnerUserID = &winnerID
			auction.WinningBidID = &bidID
			if tc.status != enums.AuctionStatusEnded {
				auction.SettlementOrderID = &orderID
			}

			// Not even an admin may unwind a closed auction; only the
			// rollover path moves the win.
			err := svc.Cancel(context.Background(), CancelInput{
				Actor:     Actor{UserID: uuid.New(), Role: enums.MemberRoleAdmin},
				AuctionID: auction.ID,
			})
			expectCode(t, err, pkgerrors.CodeStateConflict)
			if repo.auctions[auction.ID].Status != tc.status {
				t.Fatalf("status must not change, got %s", repo.auctions[auction.ID].Status)
			}
		})
	}
}

func TestCancelAlreadyCancelledIsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	ob := &stubOutbox{}
	svc := newAuctionService(t, repo, ob, now)

	auction := seedAuction(repo, enums.AuctionStatusCancelled, now)
	if err := svc.Cancel(context.Background(), CancelInput{
		Actor:     Actor{UserID: auction.SellerUserID, Role: enums.MemberRoleSeller},
		AuctionID: auction.ID,
	}); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if len(ob.events) != 0 {
		t.Fatalf("repeat cancel must not emit events")
	}
}

func TestCancelSellerWithoutBids(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	svc := newAuctionService(t, repo, &stubOutbox{}, now)

	auction := seedAuction(repo, enums.AuctionStatusActive, now)
	if err := svc.Cancel(context.Background(), CancelInput{
		Actor:     Actor{UserID: auction.SellerUserID, Role: enums.MemberRoleSeller},
		AuctionID: auction.ID,
	}); err != nil {
		t.Fatalf("seller cancel without bids: %v", err)
	}
	if repo.auctions[auction.ID].Status != enums.AuctionStatusCancelled {
		t.Fatalf("auction should be cancelled")
	}
}

func TestPauseResume(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	svc := newAuctionService(t, repo, &stubOutbox{}, now)

	auction := seedAuction(repo, enums.AuctionStatusActive, now)
	seller := Actor{UserID: auction.SellerUserID, Role: enums.MemberRoleSeller}

	if err := svc.Pause(context.Background(), seller, auction.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if repo.auctions[auction.ID].Status != enums.AuctionStatusPaused {
		t.Fatalf("expected paused")
	}
	if err := svc.Resume(context.Background(), seller, auction.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if repo.auctions[auction.ID].Status != enums.AuctionStatusActive {
		t.Fatalf("expected active")
	}

	// Pause after end time is rejected.
	repo.auctions[auction.ID].EndAt = now.Add(-time.Minute)
	err := svc.Pause(context.Background(), seller, auction.ID)
	expectCode(t, err, pkgerrors.CodeStateConflict)
}

func TestUpdateLockedOnceBidsExist(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	svc := newAuctionService(t, repo, &stubOutbox{}, now)

	auction := seedAuction(repo, enums.AuctionStatusActive, now)
	repo.ledger = append(repo.ledger, models.Bid{
		ID: uuid.New(), AuctionID: auction.ID, BidderUserID: uuid.New(), AmountCents: 1000, CreatedAt: now,
	})

	newPrice := int64(2000)
	_, err := svc.Update(context.Background(), UpdateInput{
		Actor:           Actor{UserID: auction.SellerUserID, Role: enums.MemberRoleSeller},
		AuctionID:       auction.ID,
		StartPriceCents: &newPrice,
	})
	expectCode(t, err, pkgerrors.CodeStateConflict)

	// Admin may still edit.
	if _, err := svc.Update(context.Background(), UpdateInput{
		Actor:           Actor{UserID: uuid.New(), Role: enums.MemberRoleAdmin},
		AuctionID:       auction.ID,
		StartPriceCents: &newPrice,
	}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if repo.auctions[auction.ID].StartPriceCents != 2000 {
		t.Fatalf("admin edit should apply")
	}
}

func TestCloseDueSetsWinner(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	ob := &stubOutbox{}
	svc := newAuctionService(t, repo, ob, now)

	auction := seedAuction(repo, enums.AuctionStatusActive, now)
	auction.EndAt = now.Add(-time.Minute)
	top := uuid.New()
	repo.ledger = append(repo.ledger,
		models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderUserID: uuid.New(), AmountCents: 1500, CreatedAt: now.Add(-time.Hour)},
		models.Bid{ID: uuid.New(), AuctionID: auction.ID, BidderUserID: top, AmountCents: 2500, CreatedAt: now.Add(-30 * time.Minute)},
	)

	closed, err := svc.CloseDue(context.Background(), now)
	if err != nil {
		t.Fatalf("CloseDue: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 close, got %d", closed)
	}

	got := repo.auctions[auction.ID]
	if got.Status != enums.AuctionStatusEnded {
		t.Fatalf("expected ended, got %s", got.Status)
	}
	if got.WinnerUserID == nil || *got.WinnerUserID != top {
		t.Fatalf("expected top bidder as winner")
	}
	if got.PaymentDueAt == nil || !got.PaymentDueAt.Equal(now.Add(48*time.Hour)) {
		t.Fatalf("expected payment due 48h out, got %v", got.PaymentDueAt)
	}
	if !ob.has(enums.EventAuctionEnded) {
		t.Fatalf("ended event missing")
	}
}

func TestCloseDueReserveUnmet(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	svc := newAuctionService(t, repo, &stubOutbox{}, now)

	reserve := int64(5000)
	auction := seedAuction(repo, enums.AuctionStatusActive, now)
	auction.ReservePriceCents = &reserve
	auction.EndAt = now.Add(-time.Minute)
	repo.ledger = append(repo.ledger, models.Bid{
		ID: uuid.New(), AuctionID: auction.ID, BidderUserID: uuid.New(), AmountCents: 4000, CreatedAt: now.Add(-time.Hour),
	})

	if _, err := svc.CloseDue(context.Background(), now); err != nil {
		t.Fatalf("CloseDue: %v", err)
	}
	got := repo.auctions[auction.ID]
	if got.Status != enums.AuctionStatusEnded {
		t.Fatalf("expected ended")
	}
	if got.WinnerUserID != nil {
		t.Fatalf("reserve unmet must leave no winner")
	}
}

func TestCloseDueExpiredScheduled(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	ob := &stubOutbox{}
	svc := newAuctionService(t, repo, ob, now)

	// Whole window elapsed while still scheduled (worker outage); the close
	// sweep must end it rather than leave it stranded.
	auction := seedAuction(repo, enums.AuctionStatusScheduled, now)
	auction.StartAt = now.Add(-3 * time.Hour)
	auction.EndAt = now.Add(-time.Hour)

	if activated, err := svc.ActivateDue(context.Background(), now); err != nil || activated != 0 {
		t.Fatalf("expected no activations, got %d (%v)", activated, err)
	}

	closed, err := svc.CloseDue(context.Background(), now)
	if err != nil {
		t.Fatalf("CloseDue: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected 1 close, got %d", closed)
	}

	got := repo.auctions[auction.ID]
	if got.Status != enums.AuctionStatusEnded {
		t.Fatalf("expected ended, got %s", got.Status)
	}
	if got.WinnerUserID != nil {
		t.Fatalf("never-activated auction cannot have a winner")
	}
	if !ob.has(enums.EventAuctionEnded) {
		t.Fatalf("ended event missing")
	}
}

func TestActivateDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newStubAuctionsRepo()
	ob := &stubOutbox{}
	svc := newAuctionService(t, repo, ob, now)

	seedAuction(repo, enums.AuctionStatusScheduled, now)
	activated, err := svc.ActivateDue(context.Background(), now)
	if err != nil {
		t.Fatalf("ActivateDue: %v", err)
	}
	if activated != 1 {
		t.Fatalf("expected 1 activation, got %d", activated)
	}
	if !ob.has(enums.EventAuctionActivated) {
		t.Fatalf("activation event missing")
	}
}
