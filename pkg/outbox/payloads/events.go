// Package payloads holds the wire payloads carried inside outbox envelopes.
// Downstream consumers (notifications, feed) decode against these shapes.
package payloads

import (
	"time"

	"github.com/google/uuid"
)

// AuctionActivated is emitted when an auction opens for bidding.
type AuctionActivated struct {
	AuctionID uuid.UUID `json:"auctionId"`
	ItemID    uuid.UUID `json:"itemId"`
	SellerID  uuid.UUID `json:"sellerId"`
	EndAt     time.Time `json:"endAt"`
}

// AuctionEnded is emitted when an auction closes, with or without a winner.
type AuctionEnded struct {
	AuctionID    uuid.UUID  `json:"auctionId"`
	WinnerUserID *uuid.UUID `json:"winnerUserId,omitempty"`
	WinningCents *int64     `json:"winningCents,omitempty"`
	ReserveMet   bool       `json:"reserveMet"`
	EndedAt      time.Time  `json:"endedAt"`
}

// AuctionSettled is emitted once a payable order exists for the winner.
type AuctionSettled struct {
	AuctionID    uuid.UUID `json:"auctionId"`
	OrderID      uuid.UUID `json:"orderId"`
	WinnerUserID uuid.UUID `json:"winnerUserId"`
	TotalCents   int64     `json:"totalCents"`
	PaymentDueAt time.Time `json:"paymentDueAt"`
}

// AuctionSold is emitted when the settlement order is confirmed paid.
type AuctionSold struct {
	AuctionID   uuid.UUID `json:"auctionId"`
	OrderID     uuid.UUID `json:"orderId"`
	BuyerUserID uuid.UUID `json:"buyerUserId"`
	PaidAt      time.Time `json:"paidAt"`
}

// AuctionRolledOver is emitted when the win moves to the next-ranked bidder.
type AuctionRolledOver struct {
	AuctionID        uuid.UUID `json:"auctionId"`
	PreviousWinnerID uuid.UUID `json:"previousWinnerId"`
	NewWinnerID      uuid.UUID `json:"newWinnerId"`
	NewPaymentDueAt  time.Time `json:"newPaymentDueAt"`
}

// AuctionUnsold is emitted when rollover exhausts the eligible bidders.
type AuctionUnsold struct {
	AuctionID uuid.UUID `json:"auctionId"`
}

// AuctionCancelled is emitted when a seller or admin cancels an auction.
type AuctionCancelled struct {
	AuctionID   uuid.UUID `json:"auctionId"`
	CancelledBy uuid.UUID `json:"cancelledBy"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderPaymentExpired is emitted when a settlement order's payment lapses.
type OrderPaymentExpired struct {
	OrderID   uuid.UUID `json:"orderId"`
	AuctionID uuid.UUID `json:"auctionId"`
}
