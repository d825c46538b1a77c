package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/pkg/db/models"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
)

// Ledger performs atomic stock movements. Every mutation is a single
// conditional UPDATE so concurrent callers serialize at the row, never in
// process memory.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, skuID, warehouseID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, skuID, warehouseID uuid.UUID, qty int) (int, error)
}

type ledgerImpl struct{}

// NewLedger exposes the default inventory ledger implementation.
func NewLedger() Ledger {
	return ledgerImpl{}
}

// InsufficientStockDetails is attached to INSUFFICIENT_STOCK errors so the
// caller can report which line failed and by how much.
type InsufficientStockDetails struct {
	SKUID     uuid.UUID `json:"sku_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Reserve moves qty units from available to reserved. The guard lives in the
// WHERE clause: if available_qty < qty no row matches and nothing changes.
func (ledgerImpl) Reserve(ctx context.Context, tx *gorm.DB, skuID, warehouseID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "reserve qty must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reserve")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty - ?,
			reserved_qty = reserved_qty + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku_id = ? AND warehouse_id = ? AND available_qty >= ?
	`, qty, qty, skuID, warehouseID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var item models.InventoryItem
	err := tx.WithContext(ctx).
		Where("sku_id = ? AND warehouse_id = ?", skuID, warehouseID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
		WithDetails(InsufficientStockDetails{
			SKUID:     skuID,
			Requested: qty,
			Available: item.AvailableQty,
		})
}

// Release returns up to qty reserved units back to available stock, floored
// at the current reserved count so a retried release never drives reserved
// negative. It reports how many units actually moved.
func (ledgerImpl) Release(ctx context.Context, tx *gorm.DB, skuID, warehouseID uuid.UUID, qty int) (int, error) {
	if qty <= 0 {
		return 0, nil
	}
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	var before models.InventoryItem
	err := tx.WithContext(ctx).
		Where("sku_id = ? AND warehouse_id = ?", skuID, warehouseID).
		First(&before).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory item")
	}

	// CASE keeps the statement portable across postgres and the sqlite test
	// driver; both evaluate SET expressions against the pre-update row.
	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + CASE WHEN reserved_qty < ? THEN reserved_qty ELSE ? END,
			reserved_qty = reserved_qty - CASE WHEN reserved_qty < ? THEN reserved_qty ELSE ? END,
			updated_at = CURRENT_TIMESTAMP
		WHERE sku_id = ? AND warehouse_id = ?
	`, qty, qty, qty, qty, skuID, warehouseID)
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}

	released := qty
	if before.ReservedQty < qty {
		released = before.ReservedQty
	}
	return released, nil
}
