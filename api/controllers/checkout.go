package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/novamart/novamart-backend/api/responses"
	"github.com/novamart/novamart-backend/api/validators"
	checkoutsvc "github.com/novamart/novamart-backend/internal/checkout"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/logger"
)

// Checkout places an order: reserves stock and opens a gateway payment in
// one transaction.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]checkoutsvc.ItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, checkoutsvc.ItemInput{
				SKUID:          item.SKUID,
				Name:           item.Name,
				Qty:            item.Qty,
				UnitPriceCents: item.UnitPriceCents,
			})
		}

		result, err := svc.Execute(r.Context(), checkoutsvc.Input{
			BuyerRef: payload.BuyerRef,
			Items:    items,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

type checkoutRequest struct {
	BuyerRef string                `json:"buyer_ref" validate:"required"`
	Items    []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
}

type checkoutItemRequest struct {
	SKUID          uuid.UUID `json:"sku_id" validate:"required"`
	Name           string    `json:"name" validate:"required"`
	Qty            int       `json:"qty" validate:"required,gt=0"`
	UnitPriceCents int       `json:"unit_price_cents" validate:"required,gt=0"`
}

type checkoutResponse struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderNumber  int64           `json:"order_number"`
	Status       string          `json:"status"`
	AmountUSD    string          `json:"amount_usd"`
	PaymentDueAt *time.Time      `json:"payment_due_at,omitempty"`
	Payment      paymentResponse `json:"payment"`
}

type paymentResponse struct {
	ExternalPaymentID string     `json:"external_payment_id"`
	PayAddress        string     `json:"pay_address"`
	PayAmount         string     `json:"pay_amount"`
	PayCurrency       string     `json:"pay_currency"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

func newCheckoutResponse(result *checkoutsvc.Result) checkoutResponse {
	if result == nil || result.Order == nil || result.Payment == nil {
		return checkoutResponse{}
	}
	return checkoutResponse{
		OrderID:      result.Order.ID,
		OrderNumber:  result.Order.OrderNumber,
		Status:       string(result.Order.Status),
		AmountUSD:    result.Order.AmountUSD.StringFixed(2),
		PaymentDueAt: result.Order.PaymentDueAt,
		Payment: paymentResponse{
			ExternalPaymentID: result.Payment.ExternalPaymentID,
			PayAddress:        result.Payment.PayAddress,
			PayAmount:         result.Payment.PayAmount.String(),
			PayCurrency:       result.Payment.PayCurrency,
			ExpiresAt:         result.Payment.ExpiresAt,
		},
	}
}
