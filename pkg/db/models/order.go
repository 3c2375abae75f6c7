package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bidhaus/bidhaus-backend/pkg/enums"
)

// Order is the settlement artifact created for an auction winner. A
// cancelled order may be replaced by a fresh one during rollover.
type Order struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID    uuid.UUID `gorm:"column:auction_id;type:uuid;not null;index"`
	BuyerUserID  uuid.UUID `gorm:"column:buyer_user_id;type:uuid;not null;index"`
	SellerUserID uuid.UUID `gorm:"column:seller_user_id;type:uuid;not null"`

	Currency         enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`
	SubtotalCents    int64          `gorm:"column:subtotal_cents;not null"`
	PlatformFeeCents int64          `gorm:"column:platform_fee_cents;not null"`
	ShippingFeeCents int64          `gorm:"column:shipping_fee_cents;not null;default:0"`
	TotalCents       int64          `gorm:"column:total_cents;not null"`

	Status        enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending';index"`
	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`

	PaymentLinkID    *string `gorm:"column:payment_link_id;index"`
	PaymentReference *string `gorm:"column:payment_reference"`
	CheckoutURL      *string `gorm:"column:checkout_url"`

	PaidAt      *time.Time `gorm:"column:paid_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`

	Lines []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// IsPaid reports whether the gateway confirmed payment for this order.
func (o *Order) IsPaid() bool {
	return o != nil && (o.Status == enums.OrderStatusPaid || o.PaymentStatus == enums.PaymentStatusPaid)
}
