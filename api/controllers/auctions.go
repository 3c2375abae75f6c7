package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/api/middleware"
	"github.com/bidhaus/bidhaus-backend/api/responses"
	"github.com/bidhaus/bidhaus-backend/api/validators"
	auctionsvc "github.com/bidhaus/bidhaus-backend/internal/auctions"
	settlementsvc "github.com/bidhaus/bidhaus-backend/internal/settlement"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	pkgerrors "github.com/bidhaus/bidhaus-backend/pkg/errors"
	"github.com/bidhaus/bidhaus-backend/pkg/logger"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

func actorFromRequest(r *http.Request) (auctionsvc.Actor, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return auctionsvc.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return auctionsvc.Actor{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	role, err := enums.ParseMemberRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return auctionsvc.Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown role")
	}
	return auctionsvc.Actor{UserID: uid, Role: role}, nil
}

func parseAuctionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "auctionId")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid auction id")
	}
	return id, nil
}

type createAuctionRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description *string  `json:"description,omitempty"`
	MediaURLs   []string `json:"media_urls,omitempty" validate:"omitempty,dive,url"`

	Currency          *string `json:"currency,omitempty" validate:"omitempty,len=3"`
	StartPriceCents   int64   `json:"start_price_cents" validate:"required,gt=0"`
	ReservePriceCents *int64  `json:"reserve_price_cents,omitempty" validate:"omitempty,gt=0"`
	MinIncrementCents int64   `json:"min_increment_cents" validate:"omitempty,min=0"`

	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`

	SingleBidOnly   bool  `json:"single_bid_only"`
	AllowBidUpdates *bool `json:"allow_bid_updates,omitempty"`
}

func (req createAuctionRequest) toInput(actor auctionsvc.Actor) auctionsvc.CreateInput {
	currency := enums.CurrencyUSD
	if req.Currency != nil {
		currency = enums.Currency(strings.ToUpper(strings.TrimSpace(*req.Currency)))
	}
	return auctionsvc.CreateInput{
		Actor:             actor,
		Title:             strings.TrimSpace(req.Title),
		Description:       req.Description,
		MediaURLs:         req.MediaURLs,
		Currency:          currency,
		StartPriceCents:   req.StartPriceCents,
		ReservePriceCents: req.ReservePriceCents,
		MinIncrementCents: req.MinIncrementCents,
		StartAt:           req.StartAt,
		EndAt:             req.EndAt,
		SingleBidOnly:     req.SingleBidOnly,
		AllowBidUpdates:   req.AllowBidUpdates,
	}
}

// CreateAuction handles listing creation for sellers.
func CreateAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createAuctionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auction, err := svc.Create(r.Context(), payload.toInput(actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, auction)
	}
}

type updateAuctionRequest struct {
	StartPriceCents   *int64     `json:"start_price_cents,omitempty" validate:"omitempty,gt=0"`
	ReservePriceCents *int64     `json:"reserve_price_cents,omitempty" validate:"omitempty,gt=0"`
	ClearReserve      bool       `json:"clear_reserve"`
	MinIncrementCents *int64     `json:"min_increment_cents,omitempty" validate:"omitempty,min=0"`
	StartAt           *time.Time `json:"start_at,omitempty"`
	EndAt             *time.Time `json:"end_at,omitempty"`
}

// UpdateAuction edits auction terms while they are still editable.
func UpdateAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
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

		var payload updateAuctionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auction, err := svc.Update(r.Context(), auctionsvc.UpdateInput{
			Actor:             actor,
			AuctionID:         auctionID,
			StartPriceCents:   payload.StartPriceCents,
			ReservePriceCents: payload.ReservePriceCents,
			ClearReserve:      payload.ClearReserve,
			MinIncrementCents: payload.MinIncrementCents,
			StartAt:           payload.StartAt,
			EndAt:             payload.EndAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, auction)
	}
}

// GetAuction returns the public view of an auction. Bid amounts are never
// included here; bidders use their private standing endpoint.
func GetAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		auction, err := svc.Get(r.Context(), auctionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, auction)
	}
}

// ListAuctions returns a cursor page of auctions.
func ListAuctions(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filters := auctionsvc.ListFilters{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseAuctionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filters.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("seller_id")); raw != "" {
			sellerID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
				return
			}
			filters.SellerUserID = &sellerID
		}

		page, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, page)
	}
}

// auctionTransition factors the shared shape of activate/pause/resume handlers.
func auctionTransition(logg *logger.Logger, fn func(r *http.Request, actor auctionsvc.Actor, auctionID uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		if err := fn(r, actor, auctionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"auction_id": auctionID.String()})
	}
}

// ActivateAuction opens a scheduled auction ahead of its start time.
func ActivateAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return auctionTransition(logg, func(r *http.Request, actor auctionsvc.Actor, auctionID uuid.UUID) error {
		if svc == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable")
		}
		return svc.ActivateNow(r.Context(), actor, auctionID)
	})
}

// PauseAuction suspends bidding on an active auction.
func PauseAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return auctionTransition(logg, func(r *http.Request, actor auctionsvc.Actor, auctionID uuid.UUID) error {
		if svc == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable")
		}
		return svc.Pause(r.Context(), actor, auctionID)
	})
}

// ResumeAuction reopens a paused auction.
func ResumeAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return auctionTransition(logg, func(r *http.Request, actor auctionsvc.Actor, auctionID uuid.UUID) error {
		if svc == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable")
		}
		return svc.Resume(r.Context(), actor, auctionID)
	})
}

type cancelAuctionRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// CancelAuction cancels an auction under the seller/admin cancellation rules.
func CancelAuction(svc auctionsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auction service unavailable"))
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

		var payload cancelAuctionRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if err := svc.Cancel(r.Context(), auctionsvc.CancelInput{
			Actor:     actor,
			AuctionID: auctionID,
			Reason:    payload.Reason,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"auction_id": auctionID.String()})
	}
}

// SettleAuction lets an admin force settlement for an ended auction instead
// of waiting for the background pass.
func SettleAuction(svc settlementsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		auctionID, err := parseAuctionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Settle(r.Context(), auctionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// ExpireAuctionPayment lets an admin push an unpaid settlement straight into
// rollover without waiting for the payment deadline.
func ExpireAuctionPayment(svc settlementsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
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

		if err := svc.ForceExpire(r.Context(), actor, auctionID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"auction_id": auctionID.String()})
	}
}
