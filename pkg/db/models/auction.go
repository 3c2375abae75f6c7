package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Auction is the aggregate root of the bidding engine. Winner linkage fields
// stay nil until the auction closes with a winner; SettlementOrderID always
// points at the currently authoritative order.
type Auction struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ItemID       uuid.UUID `gorm:"column:item_id;type:uuid;not null;index"`
	SellerUserID uuid.UUID `gorm:"column:seller_user_id;type:uuid;not null;index"`

	Currency          enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`
	StartPriceCents   int64          `gorm:"column:start_price_cents;not null"`
	ReservePriceCents *int64         `gorm:"column:reserve_price_cents"`
	MinIncrementCents int64          `gorm:"column:min_increment_cents;not null;default:0"`

	StartAt time.Time `gorm:"column:start_at;not null;index"`
	EndAt   time.Time `gorm:"column:end_at;not null;index"`

	SingleBidOnly   bool `gorm:"column:single_bid_only;not null;default:false"`
	AllowBidUpdates bool `gorm:"column:allow_bid_updates;not null;default:true"`

	Status enums.AuctionStatus `gorm:"column:status;type:text;not null;default:'scheduled';index"`

	WinnerUserID      *uuid.UUID `gorm:"column:winner_user_id;type:uuid"`
	WinningBidID      *uuid.UUID `gorm:"column:winning_bid_id;type:uuid"`
	PaymentDueAt      *time.Time `gorm:"column:payment_due_at;index"`
	SettlementOrderID *uuid.UUID `gorm:"column:settlement_order_id;type:uuid"`

	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	CancelledBy  *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`
	CancelReason *string    `gorm:"column:cancel_reason"`

	Item *AuctionItem `gorm:"foreignKey:ItemID"`
	Bids []Bid        `gorm:"foreignKey:AuctionID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasWinner reports whether the auction closed with a winner attached.
func (a *Auction) HasWinner() bool {
	return a != nil && a.WinnerUserID != nil && a.WinningBidID != nil
}
