package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks available/reserved counts per SKU and warehouse.
// available_qty + reserved_qty is the physical stock at that warehouse; both
// counters stay non-negative and only move through reserve/release statements.
type InventoryItem struct {
	SKUID        uuid.UUID `gorm:"column:sku_id;type:uuid;primaryKey"`
	WarehouseID  uuid.UUID `gorm:"column:warehouse_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
