package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupSettlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	for _, ddl := range settlementDDL {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

var settlementDDL = []string{
	`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL UNIQUE,
  buyer_ref TEXT NOT NULL,
  amount_usd TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'USD',
  status TEXT NOT NULL DEFAULT 'pending',
  payment_due_at DATETIME,
  cancelled_at DATETIME,
  status_updated_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  sku_id TEXT NOT NULL,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  created_at DATETIME
);`,
	`
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  external_payment_id TEXT NOT NULL UNIQUE,
  pay_address TEXT NOT NULL,
  pay_amount TEXT NOT NULL,
  pay_currency TEXT NOT NULL,
  price_amount TEXT NOT NULL,
  price_currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL DEFAULT 'pending',
  reconciliation_status TEXT NOT NULL DEFAULT 'unreconciled',
  discrepancy_amount TEXT NOT NULL DEFAULT '0',
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`
CREATE TABLE IF NOT EXISTS warehouses (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME
);`,
	`
CREATE TABLE IF NOT EXISTS inventory_items (
  sku_id TEXT NOT NULL,
  warehouse_id TEXT NOT NULL,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME,
  PRIMARY KEY (sku_id, warehouse_id)
);`,
	`
CREATE TABLE IF NOT EXISTS order_trackings (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  status TEXT NOT NULL,
  description TEXT NOT NULL,
  created_at DATETIME
);`,
	`
CREATE TABLE IF NOT EXISTS system_events (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  ref_id TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
