package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem captures the SKU/quantity snapshot for one line of an order.
// Immutable once the order is placed; read by the release path to know how
// much stock to restore.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	SKUID          uuid.UUID `gorm:"column:sku_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
