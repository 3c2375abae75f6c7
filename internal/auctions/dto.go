package auctions

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Actor identifies who is performing an administration call.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.MemberRoleAdmin
}

// CreateInput carries a new listing plus its auction terms.
type CreateInput struct {
	Actor Actor

	Title       string
	Description *string
	MediaURLs   []string

	Currency          enums.Currency
	StartPriceCents   int64
	ReservePriceCents *int64
	MinIncrementCents int64

	StartAt time.Time
	EndAt   time.Time

	SingleBidOnly   bool
	AllowBidUpdates *bool
}

// UpdateInput carries the editable scheduling and pricing fields. Nil fields
// are left untouched.
type UpdateInput struct {
	Actor     Actor
	AuctionID uuid.UUID

	StartPriceCents   *int64
	ReservePriceCents *int64
	ClearReserve      bool
	MinIncrementCents *int64
	StartAt           *time.Time
	EndAt             *time.Time
}

// CancelInput carries an auction cancellation request.
type CancelInput struct {
	Actor     Actor
	AuctionID uuid.UUID
	Reason    *string
}

// ListFilters narrows auction listings.
type ListFilters struct {
	Status       *enums.AuctionStatus
	SellerUserID *uuid.UUID
}

// AuctionList is one page of auctions plus the cursor for the next page.
type AuctionList struct {
	Auctions   []models.Auction `json:"auctions"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}
