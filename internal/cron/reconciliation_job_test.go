package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

type fakeStatusQuerier struct {
	paid  map[string]decimal.Decimal
	err   error
	calls int
}

func (q *fakeStatusQuerier) QueryStatus(_ context.Context, externalPaymentID string) (*gateway.StatusResult, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	paid, ok := q.paid[externalPaymentID]
	if !ok {
		return nil, errors.New("unknown payment")
	}
	return &gateway.StatusResult{
		RawStatus:    "finished",
		Status:       enums.PaymentStatusSucceeded,
		ActuallyPaid: paid,
	}, nil
}

type reconcileFixture struct {
	db      *gorm.DB
	repo    orders.Repository
	querier *fakeStatusQuerier
	job     *ReconciliationJob
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	db := setupSweepTestDB(t)
	repo := orders.NewRepository(db)
	querier := &fakeStatusQuerier{paid: map[string]decimal.Decimal{}}
	job, err := NewReconciliationJob(ReconciliationJobParams{
		Logger:     testLogger(),
		Repo:       repo,
		Gateway:    querier,
		Metrics:    metrics.NewSettlementMetrics(prometheus.NewRegistry()),
		JobMetrics: metrics.NewJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return &reconcileFixture{db: db, repo: repo, querier: querier, job: job}
}

func (f *reconcileFixture) seedSucceededPayment(t *testing.T, externalID string, payAmount string) *models.Payment {
	t.Helper()
	payment := &models.Payment{
		ID:                   uuid.New(),
		OrderID:              uuid.New(),
		ExternalPaymentID:    externalID,
		PayAddress:           "bc1qtestaddress",
		PayAmount:            decimal.RequireFromString(payAmount),
		PayCurrency:          "btc",
		PriceAmount:          decimal.RequireFromString("100.00"),
		PriceCurrency:        "usd",
		Status:               enums.PaymentStatusSucceeded,
		ReconciliationStatus: enums.ReconciliationStatusUnreconciled,
	}
	_, err := f.repo.CreatePayment(context.Background(), payment)
	require.NoError(t, err)
	return payment
}

func (f *reconcileFixture) reload(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, f.db.Where("id = ?", id).First(&payment).Error)
	return payment
}

func TestReconcileClassifiesPayments(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	matched := f.seedSucceededPayment(t, "ext-matched", "0.00215000")
	overpaid := f.seedSucceededPayment(t, "ext-overpaid", "0.00215000")
	underpaid := f.seedSucceededPayment(t, "ext-underpaid", "0.00215000")

	f.querier.paid["ext-matched"] = decimal.RequireFromString("0.00215000")
	f.querier.paid["ext-overpaid"] = decimal.RequireFromString("0.00220000")
	f.querier.paid["ext-underpaid"] = decimal.RequireFromString("0.00200000")

	reconciled, err := f.job.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, reconciled)

	got := f.reload(t, matched.ID)
	assert.Equal(t, enums.ReconciliationStatusMatched, got.ReconciliationStatus)
	assert.True(t, got.DiscrepancyAmount.IsZero())

	got = f.reload(t, overpaid.ID)
	assert.Equal(t, enums.ReconciliationStatusOverpaid, got.ReconciliationStatus)
	assert.True(t, got.DiscrepancyAmount.Equal(decimal.RequireFromString("0.00005")))

	got = f.reload(t, underpaid.ID)
	assert.Equal(t, enums.ReconciliationStatusUnderpaid, got.ReconciliationStatus)
	assert.True(t, got.DiscrepancyAmount.Equal(decimal.RequireFromString("-0.00015")))
}

func TestReconcileRoundsSubSatoshiDust(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	payment := f.seedSucceededPayment(t, "ext-dust", "0.00215000")
	// Off by less than half of the 8th decimal place: rounds to matched.
	f.querier.paid["ext-dust"] = decimal.RequireFromString("0.002150000000004")

	reconciled, err := f.job.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reconciled)

	got := f.reload(t, payment.ID)
	assert.Equal(t, enums.ReconciliationStatusMatched, got.ReconciliationStatus)
}

func TestReconcileSkipsOnGatewayFailure(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	payment := f.seedSucceededPayment(t, "ext-flaky", "0.00215000")
	f.querier.err = errors.New("gateway timeout")

	reconciled, err := f.job.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reconciled)

	// Stays unreconciled so the next run retries it.
	got := f.reload(t, payment.ID)
	assert.Equal(t, enums.ReconciliationStatusUnreconciled, got.ReconciliationStatus)

	var events []models.SystemEvent
	require.NoError(t, f.db.Where("type = ?", enums.SystemEventReconcileSkipped).Find(&events).Error)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].RefID)
	assert.Equal(t, payment.ID, *events[0].RefID)
}

func TestReconcileIgnoresSettledAndPendingPayments(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	pending := f.seedSucceededPayment(t, "ext-pending", "0.00215000")
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id = ?", pending.ID).
		Update("status", enums.PaymentStatusPending).Error)

	done := f.seedSucceededPayment(t, "ext-done", "0.00215000")
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id = ?", done.ID).
		Update("reconciliation_status", enums.ReconciliationStatusMatched).Error)

	reconciled, err := f.job.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reconciled)
	assert.Equal(t, 0, f.querier.calls)
}
