package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novamart/novamart-backend/api/responses"
	"github.com/novamart/novamart-backend/api/validators"
	refundsvc "github.com/novamart/novamart-backend/internal/refunds"
	"github.com/novamart/novamart-backend/pkg/db/models"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/logger"
)

// IssueRefund refunds a settled payment back to the payer's wallet.
func IssueRefund(svc refundsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(payload.AmountUSD)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "amount_usd must be a decimal string"))
			return
		}

		refund, err := svc.Issue(r.Context(), refundsvc.Input{
			ExternalPaymentID: payload.ExternalPaymentID,
			AmountUSD:         amount,
			PayoutAddress:     payload.PayoutAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newRefundResponse(refund))
	}
}

type refundRequest struct {
	ExternalPaymentID string `json:"external_payment_id" validate:"required"`
	AmountUSD         string `json:"amount_usd" validate:"required"`
	PayoutAddress     string `json:"payout_address" validate:"required"`
}

type refundResponse struct {
	RefundID         uuid.UUID  `json:"refund_id"`
	GatewayRefundID  string     `json:"gateway_refund_id"`
	Status           string     `json:"status"`
	RequestedUSD     string     `json:"requested_usd"`
	CreditedAmount   string     `json:"credited_amount"`
	CreditedCurrency string     `json:"credited_currency"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

func newRefundResponse(refund *models.Refund) refundResponse {
	if refund == nil {
		return refundResponse{}
	}
	return refundResponse{
		RefundID:         refund.ID,
		GatewayRefundID:  refund.GatewayRefundID,
		Status:           string(refund.Status),
		RequestedUSD:     refund.RequestedAmountUSD.StringFixed(2),
		CreditedAmount:   refund.CreditedAmount.String(),
		CreditedCurrency: refund.CreditedCurrency,
		ProcessedAt:      refund.ProcessedAt,
	}
}
