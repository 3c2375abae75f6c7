package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLine records the single lot sold by a settlement order, including the
// seller's earnings after the platform fee.
type OrderLine struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ItemID              uuid.UUID `gorm:"column:item_id;type:uuid;not null"`
	Description         string    `gorm:"column:description;not null"`
	AmountCents         int64     `gorm:"column:amount_cents;not null"`
	SellerEarningsCents int64     `gorm:"column:seller_earnings_cents;not null"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
}
