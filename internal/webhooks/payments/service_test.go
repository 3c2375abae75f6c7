package paymentswebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/internal/auctions"
	"github.com/bidhaus/bidhaus-backend/internal/orders"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/outbox"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

type stubOrdersRepo struct {
	order   *models.Order
	updates map[string]any
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrdersRepo) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrdersRepo) FindByPaymentLinkID(ctx context.Context, paymentLinkID string) (*models.Order, error) {
	if s.order == nil || s.order.PaymentLinkID == nil || *s.order.PaymentLinkID != paymentLinkID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrdersRepo) FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error) {
	if s.order == nil || s.order.PaymentReference == nil || *s.order.PaymentReference != reference {
		return nil, gorm.ErrRecordNotFound
	}
	return s.order, nil
}

func (s *stubOrdersRepo) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	s.updates = updates
	if status, ok := updates["status"].(enums.OrderStatus); ok {
		s.order.Status = status
	}
	if ps, ok := updates["payment_status"].(enums.PaymentStatus); ok {
		s.order.PaymentStatus = ps
	}
	return nil
}

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) CreateOrderLine(ctx context.Context, line *models.OrderLine) (*models.OrderLine, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) FindNonCancelledByAuctionAndBuyer(ctx context.Context, auctionID, buyerUserID uuid.UUID) (*models.Order, error) {
	panic("not implemented")
}

func (s *stubOrdersRepo) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	panic("not implemented")
}

func (s *stubOrdersRepo) ListUnpaidHolderIDs(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error) {
	panic("not implemented")
}

type stubAuctionsRepo struct {
	auction *models.Auction
	updates map[string]any
}

func (s *stubAuctionsRepo) WithTx(tx *gorm.DB) auctions.Repository { return s }

func (s *stubAuctionsRepo) FindAuctionForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	if s.auction == nil || s.auction.ID != auctionID {
		return nil, gorm.ErrRecordNotFound
	}
	return s.auction, nil
}

func (s *stubAuctionsRepo) UpdateAuction(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error {
	s.updates = updates
	if status, ok := updates["status"].(enums.AuctionStatus); ok {
		s.auction.Status = status
	}
	return nil
}

func (s *stubAuctionsRepo) CreateItem(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) CreateAuction(ctx context.Context, auction *models.Auction) (*models.Auction, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) FindAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) AttachSettlementOrder(ctx context.Context, auctionID, orderID uuid.UUID) (bool, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) CountLiveBids(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) ListAuctionBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) ListAuctions(ctx context.Context, params pagination.Params, filters auctions.ListFilters) (*auctions.AuctionList, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) FindDueForActivation(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) FindDueForClose(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) FindSettlementCandidates(ctx context.Context, limit int) ([]models.Auction, error) {
	panic("not implemented")
}

func (s *stubAuctionsRepo) FindRolloverCandidates(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	panic("not implemented")
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
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

type fixture struct {
	service *Service
	orders  *stubOrdersRepo
	aucs    *stubAuctionsRepo
	outbox  *stubOutbox
	order   *models.Order
	auction *models.Auction
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	linkID := "cs_test_123"
	orderID := uuid.New()
	auctionID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		AuctionID:     auctionID,
		BuyerUserID:   uuid.New(),
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentLinkID: &linkID,
	}
	auction := &models.Auction{
		ID:                auctionID,
		Status:            enums.AuctionStatusSettled,
		SettlementOrderID: &orderID,
	}
	ordersRepo := &stubOrdersRepo{order: order}
	aucsRepo := &stubAuctionsRepo{auction: auction}
	emitter := &stubOutbox{}

	service, err := NewService(ServiceParams{
		OrderRepo:         ordersRepo,
		AuctionRepo:       aucsRepo,
		Outbox:            emitter,
		TransactionRunner: &stubTxRunner{},
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Now:               func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return &fixture{
		service: service,
		orders:  ordersRepo,
		aucs:    aucsRepo,
		outbox:  emitter,
		order:   order,
		auction: auction,
	}
}

func sessionEvent(t *testing.T, eventType stripe.EventType, sess *stripe.CheckoutSession) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestHandleEvent_CompletedMarksOrderPaidAndAuctionSold(t *testing.T) {
	f := newFixture(t)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_123",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if f.order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected order paid, got %s", f.order.Status)
	}
	if f.order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected payment status paid, got %s", f.order.PaymentStatus)
	}
	if f.auction.Status != enums.AuctionStatusSold {
		t.Fatalf("expected auction sold, got %s", f.auction.Status)
	}
	if !f.outbox.has(enums.EventAuctionSold) {
		t.Fatalf("expected auction.sold event")
	}
}

func TestHandleEvent_CompletedUnpaidSessionIgnored(t *testing.T) {
	f := newFixture(t)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_123",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if f.order.Status != enums.OrderStatusPending {
		t.Fatalf("order should stay pending until the async payment succeeds")
	}
}

func TestHandleEvent_PaidIsIdempotent(t *testing.T) {
	f := newFixture(t)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_123",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
	})
	for i := 0; i < 2; i++ {
		if err := f.service.HandleEvent(context.Background(), event); err != nil {
			t.Fatalf("handle event %d: %v", i, err)
		}
	}
	if len(f.outbox.events) != 1 {
		t.Fatalf("expected a single sold event, got %d", len(f.outbox.events))
	}
}

func TestHandleEvent_LatePaymentOnStaleOrderDoesNotFlipAuction(t *testing.T) {
	f := newFixture(t)
	newOrderID := uuid.New()
	f.auction.SettlementOrderID = &newOrderID

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_123",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if f.order.Status != enums.OrderStatusPaid {
		t.Fatalf("payment should still be recorded on the order")
	}
	if f.auction.Status != enums.AuctionStatusSettled {
		t.Fatalf("auction must not be sold to a stale buyer, got %s", f.auction.Status)
	}
	if f.outbox.has(enums.EventAuctionSold) {
		t.Fatalf("no sold event expected for a stale order")
	}
}

func TestHandleEvent_ExpiredMarksPaymentExpired(t *testing.T) {
	f := newFixture(t)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, &stripe.CheckoutSession{
		ID: "cs_test_123",
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if f.order.Status != enums.OrderStatusPending {
		t.Fatalf("expiry must not cancel the order, got %s", f.order.Status)
	}
	if f.order.PaymentStatus != enums.PaymentStatusExpired {
		t.Fatalf("expected payment status expired, got %s", f.order.PaymentStatus)
	}
	if !f.outbox.has(enums.EventOrderPaymentExpired) {
		t.Fatalf("expected order.payment_expired event")
	}
}

func TestHandleEvent_ExpiredAfterPaidIgnored(t *testing.T) {
	f := newFixture(t)
	f.order.Status = enums.OrderStatusPaid
	f.order.PaymentStatus = enums.PaymentStatusPaid

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, &stripe.CheckoutSession{
		ID: "cs_test_123",
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if f.order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expiry after payment must not downgrade the order")
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("no events expected")
	}
}

func TestHandleEvent_UnknownSessionIgnored(t *testing.T) {
	f := newFixture(t)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_unknown",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown sessions should be acked, got %v", err)
	}
	if f.order.Status != enums.OrderStatusPending {
		t.Fatalf("order must be untouched")
	}
}

func TestHandleEvent_LookupFallsBackToReference(t *testing.T) {
	f := newFixture(t)
	f.order.PaymentLinkID = nil
	reference := f.order.ID.String()
	f.order.PaymentReference = &reference

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:                "cs_rotated",
		ClientReferenceID: reference,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
	})
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if f.order.Status != enums.OrderStatusPaid {
		t.Fatalf("expected order found via reference and paid")
	}
}

func TestHandleEvent_UnrelatedEventTypeIgnored(t *testing.T) {
	f := newFixture(t)

	event := &stripe.Event{Type: stripe.EventTypePaymentIntentCreated, Data: &stripe.EventData{Raw: []byte("{}")}}
	if err := f.service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("no events expected")
	}
}
