package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/logger"
)

var checkoutDDL = []string{
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
}

type fakePaymentOpener struct {
	openFn func(ctx context.Context, req gateway.OpenPaymentRequest) (*gateway.OpenPaymentResult, error)
	calls  int
}

func (f *fakePaymentOpener) OpenPayment(ctx context.Context, req gateway.OpenPaymentRequest) (*gateway.OpenPaymentResult, error) {
	f.calls++
	if f.openFn != nil {
		return f.openFn(ctx, req)
	}
	return &gateway.OpenPaymentResult{
		ExternalPaymentID: "ext-" + uuid.NewString(),
		PayAddress:        "bc1qtestaddress",
		PayAmount:         decimal.RequireFromString("0.002"),
		PayCurrency:       "btc",
		PriceAmount:       req.AmountUSD,
	}, nil
}

type txRunner struct {
	db *gorm.DB
}

func (r txRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db        *gorm.DB
	repo      orders.Repository
	gateway   *fakePaymentOpener
	service   Service
	warehouse models.Warehouse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	for _, ddl := range checkoutDDL {
		require.NoError(t, db.Exec(ddl).Error)
	}

	warehouse := models.Warehouse{ID: uuid.New(), Code: "main", Name: "Main DC", IsDefault: true}
	require.NoError(t, db.Create(&warehouse).Error)

	repo := orders.NewRepository(db)
	opener := &fakePaymentOpener{}
	log := logger.New(logger.Options{ServiceName: "checkout-test", Output: io.Discard})
	svc := NewService(log, txRunner{db: db}, repo, inventory.NewLedger(), opener, 30*time.Minute, "main")

	return &fixture{db: db, repo: repo, gateway: opener, service: svc, warehouse: warehouse}
}

func (f *fixture) seedStock(t *testing.T, sku uuid.UUID, available int) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.InventoryItem{
		SKUID:        sku,
		WarehouseID:  f.warehouse.ID,
		AvailableQty: available,
	}).Error)
}

func (f *fixture) stock(t *testing.T, sku uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.db.Where("sku_id = ? AND warehouse_id = ?", sku, f.warehouse.ID).First(&item).Error)
	return item
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sku := uuid.New()
	f.seedStock(t, sku, 5)

	result, err := f.service.Execute(ctx, Input{
		BuyerRef: "buyer-001",
		Items: []ItemInput{
			{SKUID: sku, Name: "Widget", Qty: 2, UnitPriceCents: 6495},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, enums.OrderStatusPending, result.Order.Status)
	assert.True(t, result.Order.AmountUSD.Equal(decimal.RequireFromString("129.90")), "got %s", result.Order.AmountUSD)
	require.NotNil(t, result.Order.PaymentDueAt)
	assert.Equal(t, enums.PaymentStatusPending, result.Payment.Status)
	assert.NotEmpty(t, result.Payment.PayAddress)

	item := f.stock(t, sku)
	assert.Equal(t, 3, item.AvailableQty)
	assert.Equal(t, 2, item.ReservedQty)

	var trackings []models.OrderTracking
	require.NoError(t, f.db.Where("order_id = ?", result.Order.ID).Find(&trackings).Error)
	require.Len(t, trackings, 1)

	var items []models.OrderItem
	require.NoError(t, f.db.Where("order_id = ?", result.Order.ID).Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Qty)
}

func TestExecuteInsufficientStockAbortsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plenty := uuid.New()
	short := uuid.New()
	f.seedStock(t, plenty, 10)
	f.seedStock(t, short, 1)

	_, err := f.service.Execute(ctx, Input{
		BuyerRef: "buyer-002",
		Items: []ItemInput{
			{SKUID: plenty, Name: "Widget", Qty: 2, UnitPriceCents: 100},
			{SKUID: short, Name: "Gadget", Qty: 3, UnitPriceCents: 100},
		},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	// Nothing survives the rollback: no orders, no rows for the first item's
	// reservation, no gateway call.
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	item := f.stock(t, plenty)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
	assert.Zero(t, f.gateway.calls)
}

func TestExecuteGatewayFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sku := uuid.New()
	f.seedStock(t, sku, 5)

	f.gateway.openFn = func(ctx context.Context, req gateway.OpenPaymentRequest) (*gateway.OpenPaymentResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "gateway unavailable")
	}

	_, err := f.service.Execute(ctx, Input{
		BuyerRef: "buyer-003",
		Items:    []ItemInput{{SKUID: sku, Name: "Widget", Qty: 2, UnitPriceCents: 100}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())

	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	item := f.stock(t, sku)
	assert.Equal(t, 5, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
}

func TestExecuteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []Input{
		{},
		{BuyerRef: "b"},
		{BuyerRef: "b", Items: []ItemInput{{SKUID: uuid.Nil, Qty: 1}}},
		{BuyerRef: "b", Items: []ItemInput{{SKUID: uuid.New(), Qty: 0}}},
		{BuyerRef: "b", Items: []ItemInput{{SKUID: uuid.New(), Qty: 1, UnitPriceCents: -1}}},
	}
	for _, input := range cases {
		_, err := f.service.Execute(ctx, input)
		require.Error(t, err)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	}
}

func TestExecuteMissingWarehouse(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Where("code = ?", "main").Delete(&models.Warehouse{}).Error)

	_, err := f.service.Execute(context.Background(), Input{
		BuyerRef: "b",
		Items:    []ItemInput{{SKUID: uuid.New(), Name: "W", Qty: 1, UnitPriceCents: 100}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
}
