package cron

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/logger"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

// discrepancyScale matches the gateway's 8-decimal crypto amounts.
const discrepancyScale = 8

type statusQuerier interface {
	QueryStatus(ctx context.Context, externalPaymentID string) (*gateway.StatusResult, error)
}

// ReconciliationJobParams configure the settled-payment audit.
type ReconciliationJobParams struct {
	Logger     *logger.Logger
	Repo       orders.Repository
	Gateway    statusQuerier
	Metrics    *metrics.SettlementMetrics
	JobMetrics *metrics.JobMetrics
	BatchSize  int
}

// NewReconciliationJob builds the job that compares settled payments against
// the gateway's actually-paid amounts.
func NewReconciliationJob(params ReconciliationJobParams) (*ReconciliationJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	return &ReconciliationJob{
		logg:       params.Logger,
		repo:       params.Repo,
		gateway:    params.Gateway,
		metrics:    params.Metrics,
		jobMetrics: params.JobMetrics,
		batchSize:  params.BatchSize,
	}, nil
}

// ReconciliationJob classifies settled payments as matched, overpaid, or
// underpaid based on what the gateway actually received.
type ReconciliationJob struct {
	logg       *logger.Logger
	repo       orders.Repository
	gateway    statusQuerier
	metrics    *metrics.SettlementMetrics
	jobMetrics *metrics.JobMetrics
	batchSize  int
}

func (j *ReconciliationJob) Name() string { return "reconciliation" }

func (j *ReconciliationJob) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile audits a batch of succeeded, unreconciled payments and reports
// how many it classified. A gateway failure on one payment skips it; the
// payment stays unreconciled and the next run retries it.
func (j *ReconciliationJob) Reconcile(ctx context.Context) (int, error) {
	payments, err := j.repo.FindUnreconciledPayments(ctx, j.batchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query unreconciled payments")
	}

	reconciled := 0
	for _, payment := range payments {
		if err := j.reconcilePayment(ctx, payment); err != nil {
			pctx := j.logg.WithPaymentID(ctx, payment.ExternalPaymentID)
			j.logg.Warn(j.logg.WithField(pctx, "error", err.Error()), "skipping payment this run")

			meta, _ := json.Marshal(map[string]any{
				"external_payment_id": payment.ExternalPaymentID,
				"error":               err.Error(),
			})
			refID := payment.ID
			_ = j.repo.RecordSystemEvent(ctx, &models.SystemEvent{
				Type:     enums.SystemEventReconcileSkipped,
				RefID:    &refID,
				Metadata: meta,
			})
			continue
		}
		reconciled++
	}

	logCtx := j.logg.WithField(ctx, "reconciled", reconciled)
	j.logg.Info(logCtx, "reconciliation sweep complete")
	j.jobMetrics.AddProcessed(j.Name(), reconciled)
	return reconciled, nil
}

func (j *ReconciliationJob) reconcilePayment(ctx context.Context, payment models.Payment) error {
	result, err := j.gateway.QueryStatus(ctx, payment.ExternalPaymentID)
	if err != nil {
		return err
	}

	discrepancy := result.ActuallyPaid.Sub(payment.PayAmount).Round(discrepancyScale)
	status := classifyDiscrepancy(discrepancy)
	if status != enums.ReconciliationStatusMatched {
		j.metrics.IncDiscrepancy(string(status))
	}

	return j.repo.UpdatePayment(ctx, payment.ID, map[string]any{
		"reconciliation_status": status,
		"discrepancy_amount":    discrepancy,
	})
}

func classifyDiscrepancy(discrepancy decimal.Decimal) enums.ReconciliationStatus {
	switch {
	case discrepancy.IsZero():
		return enums.ReconciliationStatusMatched
	case discrepancy.IsPositive():
		return enums.ReconciliationStatusOverpaid
	default:
		return enums.ReconciliationStatusUnderpaid
	}
}
