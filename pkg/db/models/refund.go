package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novamart/novamart-backend/pkg/enums"
)

// Refund records a refund issued at the gateway. Append-only.
type Refund struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID          uuid.UUID          `gorm:"column:payment_id;type:uuid;not null"`
	GatewayRefundID    string             `gorm:"column:gateway_refund_id;not null"`
	RequestedAmountUSD decimal.Decimal    `gorm:"column:requested_amount_usd;type:numeric(18,2);not null"`
	CreditedAmount     decimal.Decimal    `gorm:"column:credited_amount;type:numeric(24,8);not null"`
	CreditedCurrency   string             `gorm:"column:credited_currency;not null"`
	ExchangeRate       decimal.Decimal    `gorm:"column:exchange_rate;type:numeric(24,8);not null"`
	PayoutAddress      string             `gorm:"column:payout_address;not null"`
	Status             enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'processing'"`
	ProcessedAt        *time.Time         `gorm:"column:processed_at"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
}
