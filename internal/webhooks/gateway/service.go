package gatewaywebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/metrics"
)

// PaymentNotification is the IPN payload the gateway posts on every payment
// status change.
type PaymentNotification struct {
	PaymentID     json.Number `json:"payment_id"`
	PaymentStatus string      `json:"payment_status"`
	OrderID       string      `json:"order_id"`
	ActuallyPaid  json.Number `json:"actually_paid"`
}

// ServiceParams collects the webhook service collaborators.
type ServiceParams struct {
	Orders    orders.Service
	OrdersRep orders.Repository
	Metrics   *metrics.SettlementMetrics
}

// Service turns gateway notifications into order lifecycle transitions.
type Service struct {
	orders    orders.Service
	ordersRep orders.Repository
	metrics   *metrics.SettlementMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.OrdersRep == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	return &Service{
		orders:    params.Orders,
		ordersRep: params.OrdersRep,
		metrics:   params.Metrics,
	}, nil
}

// HandleNotification maps the raw gateway status and applies it to the
// payment. The raw status is counted and audited before mapping so even
// unknown statuses leave a trace.
func (s *Service) HandleNotification(ctx context.Context, notification *PaymentNotification) error {
	if notification == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification required")
	}
	externalID := strings.TrimSpace(notification.PaymentID.String())
	if externalID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	mapped := gateway.MapStatus(notification.PaymentStatus)
	s.metrics.IncWebhook(string(mapped))

	meta, _ := json.Marshal(map[string]any{
		"external_payment_id": externalID,
		"raw_status":          notification.PaymentStatus,
		"mapped_status":       mapped,
	})
	_ = s.ordersRep.RecordSystemEvent(ctx, &models.SystemEvent{
		Type:     enums.SystemEventWebhookReceived,
		Metadata: meta,
	})

	return s.orders.ApplyPaymentStatus(ctx, externalID, mapped)
}
