package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bidhaus/bidhaus-backend/pkg/db/models"
)

// Repository defines persistence operations for settlement orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderLine(ctx context.Context, line *models.OrderLine) (*models.OrderLine, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindNonCancelledByAuctionAndBuyer(ctx context.Context, auctionID, buyerUserID uuid.UUID) (*models.Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.Order, error)
	FindByPaymentLinkID(ctx context.Context, paymentLinkID string) (*models.Order, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	DeleteOrder(ctx context.Context, orderID uuid.UUID) error
	ListUnpaidHolderIDs(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error)
}
