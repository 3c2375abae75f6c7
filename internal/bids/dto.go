package bids

import (
	"github.com/google/uuid"
)

// PlaceBidInput carries a single bid submission through admission.
type PlaceBidInput struct {
	AuctionID      uuid.UUID
	BidderUserID   uuid.UUID
	AmountCents    int64
	IdempotencyKey *string

	ShippingAddressID *uuid.UUID
	Courier           *string
	CourierService    *string
	ShippingFeeCents  int64
}

// WithdrawInput identifies the bid a bidder wants to withdraw.
type WithdrawInput struct {
	AuctionID    uuid.UUID
	BidID        uuid.UUID
	BidderUserID uuid.UUID
}

// Standing is a bidder's private view of their own position in an auction.
// It never exposes other bidders' amounts.
type Standing struct {
	AuctionID        uuid.UUID  `json:"auctionId"`
	LiveBidCount     int        `json:"liveBidCount"`
	HighestBidID     *uuid.UUID `json:"highestBidId,omitempty"`
	HighestCents     *int64     `json:"highestCents,omitempty"`
	NextMinimumCents int64      `json:"nextMinimumCents"`
	CanBid           bool       `json:"canBid"`
	Reason           string     `json:"reason,omitempty"`
}
