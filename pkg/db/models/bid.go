package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid is one append-only row per submission. Rows are never edited for
// amount and never physically deleted; withdrawal flips IsWithdrawn only.
// CreatedAt is server-assigned and is the ranking tie-break.
type Bid struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID    uuid.UUID `gorm:"column:auction_id;type:uuid;not null;index:idx_bids_auction;uniqueIndex:ux_bids_idempotency"`
	BidderUserID uuid.UUID `gorm:"column:bidder_user_id;type:uuid;not null;index;uniqueIndex:ux_bids_idempotency"`
	AmountCents  int64     `gorm:"column:amount_cents;not null"`
	IsWithdrawn  bool      `gorm:"column:is_withdrawn;not null;default:false"`

	// Unique per (auction, bidder, key); enforced by a partial unique index
	// so nil keys do not collide.
	IdempotencyKey *string `gorm:"column:idempotency_key;uniqueIndex:ux_bids_idempotency,where:idempotency_key IS NOT NULL"`

	ShippingAddressID *uuid.UUID `gorm:"column:shipping_address_id;type:uuid"`
	Courier           *string    `gorm:"column:courier"`
	CourierService    *string    `gorm:"column:courier_service"`
	ShippingFeeCents  int64      `gorm:"column:shipping_fee_cents;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
