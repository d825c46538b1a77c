package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

// Service applies gateway payment outcomes to the order lifecycle.
type Service interface {
	ApplyPaymentStatus(ctx context.Context, externalPaymentID string, next enums.PaymentStatus) error
}

type service struct {
	log      *logger.Logger
	txRunner TxRunner
	repo     Repository
	ledger   inventory.Ledger
	metrics  *metrics.SettlementMetrics
}

// NewService wires the order lifecycle controller.
func NewService(
	log *logger.Logger,
	txRunner TxRunner,
	repo Repository,
	ledger inventory.Ledger,
	settlementMetrics *metrics.SettlementMetrics,
) Service {
	return &service{
		log:      log,
		txRunner: txRunner,
		repo:     repo,
		ledger:   ledger,
		metrics:  settlementMetrics,
	}
}

// statusRank orders the payment lifecycle: transitions only ever move to a
// strictly higher rank, so replayed or out-of-order callbacks cannot rewind
// an order and the first terminal status wins.
func statusRank(status enums.PaymentStatus) int {
	switch status {
	case enums.PaymentStatusPending:
		return 0
	case enums.PaymentStatusProcessing:
		return 1
	default:
		return 2
	}
}

func orderStatusFor(status enums.PaymentStatus) enums.OrderStatus {
	switch status {
	case enums.PaymentStatusPending:
		return enums.OrderStatusPending
	case enums.PaymentStatusProcessing:
		return enums.OrderStatusProcessing
	case enums.PaymentStatusSucceeded:
		return enums.OrderStatusSucceeded
	case enums.PaymentStatusFailed:
		return enums.OrderStatusFailed
	case enums.PaymentStatusCanceled:
		return enums.OrderStatusCancelled
	case enums.PaymentStatusExpired:
		return enums.OrderStatusExpired
	default:
		return enums.OrderStatusPending
	}
}

// releasesStock reports whether the terminal status hands reserved units back.
// A succeeded payment keeps its reservation for fulfillment.
func releasesStock(status enums.PaymentStatus) bool {
	switch status {
	case enums.PaymentStatusFailed, enums.PaymentStatusCanceled, enums.PaymentStatusExpired:
		return true
	default:
		return false
	}
}

func trackingDescription(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusProcessing:
		return "payment detected, awaiting confirmation"
	case enums.OrderStatusSucceeded:
		return "payment confirmed"
	case enums.OrderStatusFailed:
		return "payment failed"
	case enums.OrderStatusCancelled:
		return "order cancelled"
	case enums.OrderStatusExpired:
		return "payment window expired"
	default:
		return fmt.Sprintf("order status changed to %s", status)
	}
}

// ApplyPaymentStatus moves a payment (and its order) to the given status.
// Re-delivery of the current status is a no-op, and a status that does not
// rank above the current one is ignored, so the caller may replay callbacks
// freely. Terminal failure, cancellation, and expiry return the order's
// reserved stock to the default warehouse.
func (s *service) ApplyPaymentStatus(ctx context.Context, externalPaymentID string, next enums.PaymentStatus) error {
	if externalPaymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "external payment id is required")
	}
	if !next.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", next))
	}

	ctx = s.log.WithPaymentID(ctx, externalPaymentID)

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		payment, err := repo.FindPaymentByExternalID(ctx, externalPaymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}

		if payment.Status == next {
			return nil
		}
		if statusRank(next) <= statusRank(payment.Status) {
			s.log.Info(s.log.WithFields(ctx, map[string]any{
				"current": payment.Status,
				"ignored": next,
			}), "ignoring non-forward payment status")
			return nil
		}

		ctx := s.log.WithOrderID(ctx, payment.OrderID.String())

		if err := repo.UpdatePayment(ctx, payment.ID, map[string]any{
			"status":     next,
			"updated_at": time.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}

		orderStatus := orderStatusFor(next)
		now := time.Now().UTC()
		updates := map[string]any{
			"status":            orderStatus,
			"status_updated_at": now,
		}
		if orderStatus == enums.OrderStatusCancelled || orderStatus == enums.OrderStatusExpired {
			updates["cancelled_at"] = now
		}
		if err := repo.UpdateOrder(ctx, payment.OrderID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		if err := repo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:     payment.OrderID,
			Status:      orderStatus,
			Description: trackingDescription(orderStatus),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order tracking")
		}

		if releasesStock(next) {
			if err := s.releaseOrderStock(ctx, tx, repo, payment.OrderID); err != nil {
				return err
			}
		}

		s.log.Info(s.log.WithField(ctx, "status", next), "applied payment status")
		return nil
	})
}

// releaseOrderStock returns every item's reserved units to the default
// warehouse. A single item failing to release is recorded and skipped; the
// remaining items still release.
func (s *service) releaseOrderStock(ctx context.Context, tx *gorm.DB, repo Repository, orderID uuid.UUID) error {
	warehouse, err := repo.FindDefaultWarehouse(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeDependency, "default warehouse not configured")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve default warehouse")
	}

	items, err := repo.FindOrderItems(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}

	for _, item := range items {
		if _, rerr := s.ledger.Release(ctx, tx, item.SKUID, warehouse.ID, item.Qty); rerr != nil {
			s.log.Error(s.log.WithSKU(ctx, item.SKUID.String()), "inventory release failed", rerr)
			s.metrics.IncReleaseFailure()
			meta, _ := json.Marshal(map[string]any{
				"sku_id": item.SKUID,
				"qty":    item.Qty,
				"error":  rerr.Error(),
			})
			refID := orderID
			_ = repo.RecordSystemEvent(ctx, &models.SystemEvent{
				Type:     enums.SystemEventReleaseFailed,
				RefID:    &refID,
				Metadata: meta,
			})
			continue
		}
	}
	return nil
}
