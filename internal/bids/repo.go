package bids

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bid ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	if err := r.db.WithContext(ctx).Create(bid).Error; err != nil {
		return nil, err
	}
	return bid, nil
}

func (r *repository) FindBid(ctx context.Context, bidID uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("id = ?", bidID).
		First(&bid).Error
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, auctionID, bidderUserID uuid.UUID, key string) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ? AND bidder_user_id = ? AND idempotency_key = ?", auctionID, bidderUserID, key).
		First(&bid).Error
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// FindAuctionForUpdate locks the auction row for the duration of the
// transaction. Admission serializes on this lock so two concurrent bids from
// the same bidder cannot both pass the increment check.
func (r *repository) FindAuctionForUpdate(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", auctionID).
		First(&auction).Error
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

func (r *repository) FindAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Where("id = ?", auctionID).
		First(&auction).Error
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

func (r *repository) ListAuctionBids(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var ledger []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("created_at ASC").
		Find(&ledger).Error
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (r *repository) ListBidderBids(ctx context.Context, auctionID, bidderUserID uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ? AND bidder_user_id = ?", auctionID, bidderUserID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkWithdrawn(ctx context.Context, bidID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ?", bidID).
		Update("is_withdrawn", true).Error
}
