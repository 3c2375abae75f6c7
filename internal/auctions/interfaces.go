package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

// Repository defines persistence operations for auctions and their listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateItem(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error)
	CreateAuction(ctx context.Context, auction *models.Auction) (*models.Auction, error)
	FindAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	FindAuctionForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error)
	UpdateAuction(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error
	AttachSettlementOrder(ctx context.Context, auctionID, orderID uuid.UUID) (bool, error)
	CountLiveBids(ctx context.Context, auctionID uuid.UUID) (int64, error)
	ListAuctionBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	ListAuctions(ctx context.Context, params pagination.Params, filters ListFilters) (*AuctionList, error)
	FindDueForActivation(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	FindDueForClose(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
	FindSettlementCandidates(ctx context.Context, limit int) ([]models.Auction, error)
	FindRolloverCandidates(ctx context.Context, now time.Time, limit int) ([]models.Auction, error)
}
