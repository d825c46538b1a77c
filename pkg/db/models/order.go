package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novamart/novamart-backend/pkg/enums"
)

// Order is the settlement view of a placed order. Rows are never deleted;
// the lifecycle is soft, driven by status transitions.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     int64             `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerRef        string            `gorm:"column:buyer_ref;not null"`
	AmountUSD       decimal.Decimal   `gorm:"column:amount_usd;type:numeric(18,2);not null"`
	Currency        string            `gorm:"column:currency;not null;default:'USD'"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentDueAt    *time.Time        `gorm:"column:payment_due_at"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at"`
	StatusUpdatedAt time.Time         `gorm:"column:status_updated_at"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment         *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
