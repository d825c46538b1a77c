package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

// timeoutCancelDescription is the buyer-facing tracking note for orders the
// sweep cancels.
const timeoutCancelDescription = "订单超时未支付，已自动取消"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OrderTimeoutJobParams configure the payment-window sweep.
type OrderTimeoutJobParams struct {
	Logger               *logger.Logger
	DB                   txRunner
	Repo                 orders.Repository
	Ledger               inventory.Ledger
	Metrics              *metrics.SettlementMetrics
	JobMetrics           *metrics.JobMetrics
	DefaultWarehouseCode string
	BatchSize            int
}

// NewOrderTimeoutJob builds the sweep that cancels orders whose payment
// window lapsed without payment.
func NewOrderTimeoutJob(params OrderTimeoutJobParams) (*OrderTimeoutJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if params.DefaultWarehouseCode == "" {
		return nil, fmt.Errorf("default warehouse code required")
	}
	return &OrderTimeoutJob{
		logg:          params.Logger,
		db:            params.DB,
		repo:          params.Repo,
		ledger:        params.Ledger,
		metrics:       params.Metrics,
		jobMetrics:    params.JobMetrics,
		warehouseCode: params.DefaultWarehouseCode,
		batchSize:     params.BatchSize,
		now:           time.Now,
	}, nil
}

// OrderTimeoutJob cancels overdue pending orders and releases their stock.
type OrderTimeoutJob struct {
	logg          *logger.Logger
	db            txRunner
	repo          orders.Repository
	ledger        inventory.Ledger
	metrics       *metrics.SettlementMetrics
	jobMetrics    *metrics.JobMetrics
	warehouseCode string
	batchSize     int
	now           func() time.Time
}

func (j *OrderTimeoutJob) Name() string { return "order-timeout" }

func (j *OrderTimeoutJob) Run(ctx context.Context) error {
	_, err := j.Sweep(ctx)
	return err
}

// Sweep closes every pending order whose payment deadline has passed and
// reports how many it closed. If the default warehouse cannot be resolved
// the sweep aborts before touching any order: cancelling without releasing
// stock would strand reservations.
func (j *OrderTimeoutJob) Sweep(ctx context.Context) (int, error) {
	warehouse, err := j.repo.FindWarehouseByCode(ctx, j.warehouseCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("default warehouse %q not found", j.warehouseCode))
	}
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve default warehouse")
	}

	cutoff := j.now().UTC()
	overdue, err := j.repo.FindPendingOrdersBefore(ctx, cutoff, j.batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query overdue orders")
	}

	closed := 0
	var errs []error
	for _, order := range overdue {
		if err := j.closeOrder(ctx, order, warehouse); err != nil {
			errs = append(errs, fmt.Errorf("close order %s: %w", order.ID, err))
			continue
		}
		closed++
	}

	logCtx := j.logg.WithField(ctx, "closed", closed)
	j.logg.Info(logCtx, "timeout sweep complete")
	j.jobMetrics.AddProcessed(j.Name(), closed)

	if closed > 0 {
		meta, _ := json.Marshal(map[string]any{"closed": closed, "cutoff": cutoff})
		if err := j.repo.RecordSystemEvent(ctx, &models.SystemEvent{
			Type:     enums.SystemEventSweepCompleted,
			Metadata: meta,
		}); err != nil {
			errs = append(errs, fmt.Errorf("record sweep event: %w", err))
		}
	}

	return closed, multierr.Combine(errs...)
}

func (j *OrderTimeoutJob) closeOrder(ctx context.Context, order models.Order, warehouse *models.Warehouse) error {
	ctx = j.logg.WithOrderID(ctx, order.ID.String())
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := j.repo.WithTx(tx)

		// Re-check under the transaction: a payment callback may have moved
		// the order since the sweep query.
		current, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if current.Status != enums.OrderStatusPending {
			return nil
		}

		now := j.now().UTC()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":            enums.OrderStatusCancelled,
			"cancelled_at":      now,
			"status_updated_at": now,
		}); err != nil {
			return err
		}

		payment, err := repo.FindPaymentByOrder(ctx, order.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if payment != nil && !payment.Status.IsTerminal() {
			if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
				"status":     enums.PaymentStatusCanceled,
				"updated_at": now,
			}); err != nil {
				return err
			}
		}

		for _, item := range current.Items {
			if _, rerr := j.ledger.Release(ctx, tx, item.SKUID, warehouse.ID, item.Qty); rerr != nil {
				j.logg.Error(j.logg.WithSKU(ctx, item.SKUID.String()), "inventory release failed", rerr)
				j.metrics.IncReleaseFailure()
				meta, _ := json.Marshal(map[string]any{
					"sku_id": item.SKUID,
					"qty":    item.Qty,
					"error":  rerr.Error(),
				})
				refID := order.ID
				_ = repo.RecordSystemEvent(ctx, &models.SystemEvent{
					Type:     enums.SystemEventReleaseFailed,
					RefID:    &refID,
					Metadata: meta,
				})
				continue
			}
		}

		return repo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:     order.ID,
			Status:      enums.OrderStatusCancelled,
			Description: timeoutCancelDescription,
		})
	})
}
