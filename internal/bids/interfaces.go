package bids

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

// Repository defines persistence operations for the bid ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error)
	FindBid(ctx context.Context, bidID uuid.UUID) (*models.Bid, error)
	FindByIdempotencyKey(ctx context.Context, auctionID, bidderUserID uuid.UUID, key string) (*models.Bid, error)
	FindAuctionForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	FindAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	ListAuctionBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	ListBidderBids(ctx context.Context, auctionID, bidderUserID uuid.UUID) ([]models.Bid, error)
	MarkWithdrawn(ctx context.Context, bidID uuid.UUID) error
}
