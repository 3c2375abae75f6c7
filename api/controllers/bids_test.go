package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/api/middleware"
	bidsvc "github.com/bidhaus/bidhaus-backend/internal/bids"
	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
)

type stubBidService struct {
	placed   *bidsvc.PlaceBidInput
	bid      *models.Bid
	standing *bidsvc.Standing
	err      error
}

func (s *stubBidService) PlaceBid(ctx context.Context, input bidsvc.PlaceBidInput) (*models.Bid, error) {
	s.placed = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.bid, nil
}

func (s *stubBidService) Withdraw(ctx context.Context, input bidsvc.WithdrawInput) error {
	return s.err
}

func (s *stubBidService) MyStanding(ctx context.Context, auctionID, bidderUserID uuid.UUID) (*bidsvc.Standing, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.standing, nil
}

func authedRequest(t *testing.T, method, target string, body []byte, userID uuid.UUID, role enums.MemberRole, params map[string]string) *http.Request {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))

	routeCtx := chi.NewRouteContext()
	for key, value := range params {
		routeCtx.URLParams.Add(key, value)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, routeCtx)

	return req.WithContext(ctx)
}

func TestPlaceBidSuccess(t *testing.T) {
	auctionID := uuid.New()
	bidderID := uuid.New()
	svc := &stubBidService{bid: &models.Bid{ID: uuid.New(), AuctionID: auctionID, AmountCents: 1500}}
	handler := PlaceBid(svc, nil)

	body, _ := json.Marshal(map[string]any{"amount_cents": 1500})
	req := authedRequest(t, http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/bids", body,
		bidderID, enums.MemberRoleBuyer, map[string]string{"auctionId": auctionID.String()})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.placed == nil {
		t.Fatalf("expected service call")
	}
	if svc.placed.AuctionID != auctionID || svc.placed.BidderUserID != bidderID {
		t.Fatalf("input not derived from route and token context")
	}
	if svc.placed.AmountCents != 1500 {
		t.Fatalf("expected amount 1500 got %d", svc.placed.AmountCents)
	}
}

func TestPlaceBidHeaderIdempotencyKeyWins(t *testing.T) {
	auctionID := uuid.New()
	svc := &stubBidService{bid: &models.Bid{ID: uuid.New()}}
	handler := PlaceBid(svc, nil)

	body, _ := json.Marshal(map[string]any{"amount_cents": 1500, "idempotency_key": "body-key"})
	req := authedRequest(t, http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/bids", body,
		uuid.New(), enums.MemberRoleBuyer, map[string]string{"auctionId": auctionID.String()})
	req.Header.Set("Idempotency-Key", "header-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	if svc.placed.IdempotencyKey == nil || *svc.placed.IdempotencyKey != "header-key" {
		t.Fatalf("expected header key to win")
	}
}

func TestPlaceBidRejectsNonPositiveAmount(t *testing.T) {
	auctionID := uuid.New()
	svc := &stubBidService{}
	handler := PlaceBid(svc, nil)

	body, _ := json.Marshal(map[string]any{"amount_cents": 0})
	req := authedRequest(t, http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/bids", body,
		uuid.New(), enums.MemberRoleBuyer, map[string]string{"auctionId": auctionID.String()})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.placed != nil {
		t.Fatalf("service must not be called on invalid payload")
	}
}

func TestPlaceBidMissingUserContext(t *testing.T) {
	auctionID := uuid.New()
	handler := PlaceBid(&stubBidService{}, nil)

	body, _ := json.Marshal(map[string]any{"amount_cents": 1500})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/bids", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPlaceBidMapsStateConflict(t *testing.T) {
	auctionID := uuid.New()
	svc := &stubBidService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not open for bidding")}
	handler := PlaceBid(svc, nil)

	body, _ := json.Marshal(map[string]any{"amount_cents": 1500})
	req := authedRequest(t, http.MethodPost, "/api/v1/auctions/"+auctionID.String()+"/bids", body,
		uuid.New(), enums.MemberRoleBuyer, map[string]string{"auctionId": auctionID.String()})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", rec.Code)
	}
}

func TestMyStandingReturnsPrivateView(t *testing.T) {
	auctionID := uuid.New()
	highest := int64(2000)
	svc := &stubBidService{standing: &bidsvc.Standing{
		AuctionID:        auctionID,
		LiveBidCount:     2,
		HighestCents:     &highest,
		NextMinimumCents: 2100,
		CanBid:           true,
	}}
	handler := MyStanding(svc, nil)

	req := authedRequest(t, http.MethodGet, "/api/v1/auctions/"+auctionID.String()+"/standing", nil,
		uuid.New(), enums.MemberRoleBuyer, map[string]string{"auctionId": auctionID.String()})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	var envelope struct {
		Data bidsvc.Standing `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.NextMinimumCents != 2100 || !envelope.Data.CanBid {
		t.Fatalf("unexpected standing: %+v", envelope.Data)
	}
}
