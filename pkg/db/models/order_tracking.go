package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/novamart/novamart-backend/pkg/enums"
)

// OrderTracking is the append-only audit trail written on every order status
// change. Rows are never mutated.
type OrderTracking struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status      enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	Description string            `gorm:"column:description;not null"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
