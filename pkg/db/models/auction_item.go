package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionItem is the listing a seller puts up for auction. Once an Auction
// references it the row is treated as immutable.
type AuctionItem struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerUserID uuid.UUID `gorm:"column:seller_user_id;type:uuid;not null;index"`
	Title        string    `gorm:"column:title;not null"`
	Description  *string   `gorm:"column:description"`
	MediaURLs    []string  `gorm:"column:media_urls;type:jsonb;serializer:json"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
