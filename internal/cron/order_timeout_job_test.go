package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

type sweepFixture struct {
	db   *gorm.DB
	repo orders.Repository
	job  *OrderTimeoutJob
	now  time.Time
}

func newSweepFixture(t *testing.T) *sweepFixture {
	t.Helper()
	db := setupSweepTestDB(t)
	repo := orders.NewRepository(db)
	job, err := NewOrderTimeoutJob(OrderTimeoutJobParams{
		Logger:               testLogger(),
		DB:                   testTxRunner{db: db},
		Repo:                 repo,
		Ledger:               inventory.NewLedger(),
		Metrics:              metrics.NewSettlementMetrics(prometheus.NewRegistry()),
		JobMetrics:           metrics.NewJobMetrics(prometheus.NewRegistry()),
		DefaultWarehouseCode: "main",
	})
	require.NoError(t, err)

	now := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	job.now = func() time.Time { return now }
	return &sweepFixture{db: db, repo: repo, job: job, now: now}
}

func (f *sweepFixture) seedWarehouse(t *testing.T) *models.Warehouse {
	t.Helper()
	warehouse := &models.Warehouse{ID: uuid.New(), Code: "main", Name: "Main DC", IsDefault: true}
	require.NoError(t, f.db.Create(warehouse).Error)
	return warehouse
}

func (f *sweepFixture) seedStock(t *testing.T, sku, warehouse uuid.UUID, available, reserved int) {
	t.Helper()
	require.NoError(t, f.db.Create(&models.InventoryItem{
		SKUID:        sku,
		WarehouseID:  warehouse,
		AvailableQty: available,
		ReservedQty:  reserved,
	}).Error)
}

func (f *sweepFixture) seedOrder(t *testing.T, status enums.OrderStatus, dueAt *time.Time, items []models.OrderItem) *models.Order {
	t.Helper()
	ctx := context.Background()
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     time.Now().UnixNano(),
		BuyerRef:        "buyer-001",
		AmountUSD:       decimal.RequireFromString("59.90"),
		Currency:        "USD",
		Status:          status,
		PaymentDueAt:    dueAt,
		StatusUpdatedAt: f.now,
	}
	_, err := f.repo.CreateOrder(ctx, order)
	require.NoError(t, err)
	for i := range items {
		items[i].OrderID = order.ID
	}
	if len(items) > 0 {
		require.NoError(t, f.repo.CreateOrderItems(ctx, items))
	}
	return order
}

func (f *sweepFixture) seedPayment(t *testing.T, orderID uuid.UUID, status enums.PaymentStatus) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:                uuid.New(),
		OrderID:           orderID,
		ExternalPaymentID: "ext-" + uuid.NewString(),
		PayAddress:        "bc1qtestaddress",
		PayAmount:         decimal.RequireFromString("0.00101"),
		PayCurrency:       "btc",
		PriceAmount:       decimal.RequireFromString("59.90"),
		PriceCurrency:     "usd",
		Status:            status,
	}
	_, err := f.repo.CreatePayment(context.Background(), payment)
	require.NoError(t, err)
	return payment
}

func (f *sweepFixture) stock(t *testing.T, sku, warehouse uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.db.Where("sku_id = ? AND warehouse_id = ?", sku, warehouse).First(&item).Error)
	return item
}

func overdue(f *sweepFixture) *time.Time {
	due := f.now.Add(-10 * time.Minute)
	return &due
}

func TestSweepCancelsOverdueOrder(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	warehouse := f.seedWarehouse(t)
	sku := uuid.New()
	f.seedStock(t, sku, warehouse.ID, 5, 3)

	order := f.seedOrder(t, enums.OrderStatusPending, overdue(f), []models.OrderItem{
		{ID: uuid.New(), SKUID: sku, Name: "widget", Qty: 3, UnitPriceCents: 1997},
	})
	payment := f.seedPayment(t, order.ID, enums.PaymentStatusPending)

	closed, err := f.job.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := f.repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)

	gotPayment, err := f.repo.FindPaymentByExternalID(ctx, payment.ExternalPaymentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCanceled, gotPayment.Status)

	item := f.stock(t, sku, warehouse.ID)
	assert.Equal(t, 8, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var trackings []models.OrderTracking
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Find(&trackings).Error)
	require.Len(t, trackings, 1)
	assert.Equal(t, timeoutCancelDescription, trackings[0].Description)

	var events []models.SystemEvent
	require.NoError(t, f.db.Where("type = ?", enums.SystemEventSweepCompleted).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestSweepLeavesFutureAndNonPendingOrders(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	f.seedWarehouse(t)

	future := f.now.Add(15 * time.Minute)
	notDue := f.seedOrder(t, enums.OrderStatusPending, &future, nil)
	alreadyPaid := f.seedOrder(t, enums.OrderStatusProcessing, overdue(f), nil)
	noDeadline := f.seedOrder(t, enums.OrderStatusPending, nil, nil)

	closed, err := f.job.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	for _, seeded := range []*models.Order{notDue, alreadyPaid, noDeadline} {
		got, err := f.repo.FindOrder(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, seeded.Status, got.Status)
	}
}

func TestSweepFailsClosedWithoutWarehouse(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, enums.OrderStatusPending, overdue(f), nil)

	closed, err := f.job.Sweep(ctx)
	assert.Equal(t, 0, closed)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())

	// The overdue order must be untouched when stock cannot be released.
	got, err := f.repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, got.Status)
}

func TestSweepReleaseFailureStillClosesOrder(t *testing.T) {
	f := newSweepFixture(t)
	ctx := context.Background()
	warehouse := f.seedWarehouse(t)

	goodSKU := uuid.New()
	missingSKU := uuid.New()
	f.seedStock(t, goodSKU, warehouse.ID, 0, 2)

	order := f.seedOrder(t, enums.OrderStatusPending, overdue(f), []models.OrderItem{
		{ID: uuid.New(), SKUID: missingSKU, Name: "ghost", Qty: 1, UnitPriceCents: 500},
		{ID: uuid.New(), SKUID: goodSKU, Name: "widget", Qty: 2, UnitPriceCents: 1997},
	})

	closed, err := f.job.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, err := f.repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, got.Status)

	item := f.stock(t, goodSKU, warehouse.ID)
	assert.Equal(t, 2, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)

	var events []models.SystemEvent
	require.NoError(t, f.db.Where("type = ?", enums.SystemEventReleaseFailed).Find(&events).Error)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].RefID)
	assert.Equal(t, order.ID, *events[0].RefID)
}

func TestSweepRespectsBatchSize(t *testing.T) {
	f := newSweepFixture(t)
	f.job.batchSize = 2
	ctx := context.Background()
	f.seedWarehouse(t)

	for i := 0; i < 3; i++ {
		f.seedOrder(t, enums.OrderStatusPending, overdue(f), nil)
	}

	closed, err := f.job.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	closed, err = f.job.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
}
