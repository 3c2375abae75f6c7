package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
	"github.com/bidhaus/bidhaus-backend/pkg/enums"
	"github.com/bidhaus/bidhaus-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an auctions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateItem(ctx context.Context, item *models.AuctionItem) (*models.AuctionItem, error) {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) CreateAuction(ctx context.Context, auction *models.Auction) (*models.Auction, error) {
	if err := r.db.WithContext(ctx).Create(auction).Error; err != nil {
		return nil, err
	}
	return auction, nil
}

func (r *repository) FindAuction(ctx context.Context, auctionID uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).
		Preload("Item").
		Where("id = ?", auctionID).
		First(&auction).Error
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

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

func (r *repository) UpdateAuction(ctx context.Context, auctionID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", auctionID).
		Updates(updates).Error
}

// AttachSettlementOrder claims the auction for the given settlement order.
// The compare-and-set against a NULL settlement_order_id is what makes
// concurrent settlement of the same auction produce exactly one order.
func (r *repository) AttachSettlementOrder(ctx context.Context, auctionID, orderID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND settlement_order_id IS NULL", auctionID).
		Updates(map[string]any{
			"settlement_order_id": orderID,
			"status":              enums.AuctionStatusSettled,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CountLiveBids(ctx context.Context, auctionID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("auction_id = ? AND is_withdrawn = ?", auctionID, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
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

func (r *repository) ListAuctions(ctx context.Context, params pagination.Params, filters ListFilters) (*AuctionList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Preload("Item").
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.SellerUserID != nil {
		query = query.Where("seller_user_id = ?", *filters.SellerUserID)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at, id) < (?, ?)",
			cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.Auction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &AuctionList{Auctions: rows}
	if len(rows) > limit {
		list.Auctions = rows[:limit]
		last := list.Auctions[limit-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		list.NextCursor = &next
	}
	return list, nil
}

func (r *repository) FindDueForActivation(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_at <= ? AND end_at > ?", enums.AuctionStatusScheduled, now, now).
		Order("start_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindDueForClose returns auctions whose end time has passed and that still
// need to be ended. Scheduled auctions are included: one whose whole window
// elapsed without activation must close too, or it would never leave
// scheduled (the activation sweep only takes windows that are still open).
func (r *repository) FindDueForClose(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	err := r.db.WithContext(ctx).
		Where("status IN ? AND end_at <= ?", []enums.AuctionStatus{
			enums.AuctionStatusActive,
			enums.AuctionStatusPaused,
			enums.AuctionStatusScheduled,
		}, now).
		Order("end_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindSettlementCandidates(ctx context.Context, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	err := r.db.WithContext(ctx).
		Where("status = ? AND winner_user_id IS NOT NULL AND settlement_order_id IS NULL", enums.AuctionStatusEnded).
		Order("end_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindRolloverCandidates(ctx context.Context, now time.Time, limit int) ([]models.Auction, error) {
	var rows []models.Auction
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_due_at IS NOT NULL AND payment_due_at <= ?", enums.AuctionStatusSettled, now).
		Order("payment_due_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
