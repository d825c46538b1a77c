package refunds

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

// RefundIssuer issues a refund at the gateway.
type RefundIssuer interface {
	IssueRefund(ctx context.Context, externalPaymentID string, amountUSD decimal.Decimal, payoutAddress string) (*gateway.RefundResult, error)
}

// Input is a refund request against a settled payment.
type Input struct {
	ExternalPaymentID string
	AmountUSD         decimal.Decimal
	PayoutAddress     string
}

// Service issues refunds at the gateway and records them locally.
type Service interface {
	Issue(ctx context.Context, input Input) (*models.Refund, error)
}

type service struct {
	log       *logger.Logger
	txRunner  orders.TxRunner
	ordersRep orders.Repository
	repo      Repository
	issuer    RefundIssuer
	metrics   *metrics.SettlementMetrics
}

// NewService wires the refund processor.
func NewService(
	log *logger.Logger,
	txRunner orders.TxRunner,
	ordersRep orders.Repository,
	repo Repository,
	issuer RefundIssuer,
	settlementMetrics *metrics.SettlementMetrics,
) Service {
	return &service{
		log:       log,
		txRunner:  txRunner,
		ordersRep: ordersRep,
		repo:      repo,
		issuer:    issuer,
		metrics:   settlementMetrics,
	}
}

// Issue refunds a settled payment: the local payment and its order are
// checked first, the gateway refund is issued, then the refund is recorded
// and the order moved to refunded in one transaction. If recording fails
// after the gateway call, money has already moved with no matching local
// row: that gap is logged, counted, and written to the audit trail rather
// than silently dropped.
func (s *service) Issue(ctx context.Context, input Input) (*models.Refund, error) {
	if input.ExternalPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment id is required")
	}
	if input.AmountUSD.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if input.PayoutAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout address is required")
	}

	ctx = s.log.WithPaymentID(ctx, input.ExternalPaymentID)

	payment, err := s.ordersRep.FindPaymentByExternalID(ctx, input.ExternalPaymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	order, err := s.ordersRep.FindOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not refundable").
			WithDetails(map[string]any{"order_status": order.Status})
	}

	issued, err := s.issuer.IssueRefund(ctx, input.ExternalPaymentID, input.AmountUSD, input.PayoutAddress)
	if err != nil {
		return nil, err
	}

	var refund *models.Refund
	txErr := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRep.WithTx(tx)

		now := time.Now().UTC()
		refund = &models.Refund{
			PaymentID:          payment.ID,
			GatewayRefundID:    issued.RefundID,
			RequestedAmountUSD: input.AmountUSD,
			CreditedAmount:     issued.CreditedAmount,
			CreditedCurrency:   issued.CreditedCurrency,
			ExchangeRate:       issued.ExchangeRate,
			PayoutAddress:      input.PayoutAddress,
			Status:             enums.RefundStatusProcessing,
			ProcessedAt:        &now,
		}
		if _, err := s.repo.WithTx(tx).Create(ctx, refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
		}

		if err := ordersRepo.UpdateOrder(ctx, payment.OrderID, map[string]any{
			"status":            enums.OrderStatusRefunded,
			"status_updated_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if err := ordersRepo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:     payment.OrderID,
			Status:      enums.OrderStatusRefunded,
			Description: "refund issued",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order tracking")
		}
		return nil
	})
	if txErr != nil {
		// Money has already moved at the gateway; the audit write must not
		// ride the transaction that just rolled back.
		s.recordUnrecorded(ctx, input, issued)
		return nil, txErr
	}
	s.log.Info(ctx, "refund processed")
	return refund, nil
}

// recordUnrecorded surfaces a refund that moved money at the gateway but
// could not be recorded locally. The system event and counter keep the gap
// visible; reconciliation of the funds is a manual follow-up.
func (s *service) recordUnrecorded(ctx context.Context, input Input, issued *gateway.RefundResult) {
	s.log.Error(ctx, "refund issued but not recorded", nil)
	s.metrics.IncUnrecordedRefund()

	meta, _ := json.Marshal(map[string]any{
		"external_payment_id": input.ExternalPaymentID,
		"gateway_refund_id":   issued.RefundID,
		"requested_usd":       input.AmountUSD,
		"credited_amount":     issued.CreditedAmount,
		"credited_currency":   issued.CreditedCurrency,
	})
	if err := s.ordersRep.RecordSystemEvent(ctx, &models.SystemEvent{
		Type:     enums.SystemEventUnrecordedRefund,
		Metadata: meta,
	}); err != nil {
		s.log.Error(ctx, "record unrecorded refund event", err)
	}
}
