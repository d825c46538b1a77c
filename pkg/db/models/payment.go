package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novamart/novamart-backend/pkg/enums"
)

// Payment tracks the active gateway payment attempt for an order. Created
// when a payment is opened at the gateway, updated by status callbacks and the
// reconciliation job, never deleted.
type Payment struct {
	ID                   uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID              uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	ExternalPaymentID    string                     `gorm:"column:external_payment_id;not null;uniqueIndex"`
	PayAddress           string                     `gorm:"column:pay_address;not null"`
	PayAmount            decimal.Decimal            `gorm:"column:pay_amount;type:numeric(24,8);not null"`
	PayCurrency          string                     `gorm:"column:pay_currency;not null"`
	PriceAmount          decimal.Decimal            `gorm:"column:price_amount;type:numeric(18,2);not null"`
	PriceCurrency        string                     `gorm:"column:price_currency;not null;default:'usd'"`
	Status               enums.PaymentStatus        `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	ReconciliationStatus enums.ReconciliationStatus `gorm:"column:reconciliation_status;type:reconciliation_status;not null;default:'unreconciled'"`
	DiscrepancyAmount    decimal.Decimal            `gorm:"column:discrepancy_amount;type:numeric(24,8);not null;default:0"`
	ExpiresAt            *time.Time                 `gorm:"column:expires_at"`
	CreatedAt            time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
