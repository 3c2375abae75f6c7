package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/api/responses"
	"github.com/bidhaus/bidhaus-backend/api/validators"
	bidsvc "github.com/bidhaus/bidhaus-backend/internal/bids"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
)

type placeBidRequest struct {
	AmountCents    int64   `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey *string `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`

	ShippingAddressID *uuid.UUID `json:"shipping_address_id,omitempty"`
	Courier           *string    `json:"courier,omitempty" validate:"omitempty,max=100"`
	CourierService    *string    `json:"courier_service,omitempty" validate:"omitempty,max=100"`
	ShippingFeeCents  int64      `json:"shipping_fee_cents" validate:"omitempty,min=0"`
}

// PlaceBid submits a sealed bid on an auction. The Idempotency-Key header
// takes precedence over a key in the payload.
func PlaceBid(svc bidsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload placeBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		idempotencyKey := payload.IdempotencyKey
		if header := r.Header.Get("Idempotency-Key"); header != "" {
			idempotencyKey = &header
		}

		bid, err := svc.PlaceBid(r.Context(), bidsvc.PlaceBidInput{
			AuctionID:         auctionID,
			BidderUserID:      actor.UserID,
			AmountCents:       payload.AmountCents,
			IdempotencyKey:    idempotencyKey,
			ShippingAddressID: payload.ShippingAddressID,
			Courier:           payload.Courier,
			CourierService:    payload.CourierService,
			ShippingFeeCents:  payload.ShippingFeeCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, bid)
	}
}

// WithdrawBid retracts one of the caller's own live bids.
func WithdrawBid(svc bidsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bidID, err := uuid.Parse(chi.URLParam(r, "bidId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bid id"))
			return
		}

		if err := svc.Withdraw(r.Context(), bidsvc.WithdrawInput{
			AuctionID:    auctionID,
			BidID:        bidID,
			BidderUserID: actor.UserID,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"bid_id": bidID.String()})
	}
}

// MyStanding returns the caller's private view of their position in an
// auction. Nothing about other bidders leaks through this endpoint.
func MyStanding(svc bidsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		standing, err := svc.MyStanding(r.Context(), auctionID, actor.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, standing)
	}
}
