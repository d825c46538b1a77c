package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/novamart/novamart-backend/api/responses"
	gatewaywebhook "github.com/novamart/novamart-backend/internal/webhooks/gateway"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/logger"
)

const signatureHeader = "X-Gateway-Sig"

type GatewayWebhookService interface {
	HandleNotification(ctx context.Context, notification *gatewaywebhook.PaymentNotification) error
}

type gatewayWebhookGuard interface {
	CheckAndMark(ctx context.Context, callbackID string) (bool, error)
	Delete(ctx context.Context, callbackID string) error
}

// GatewayWebhook receives payment status callbacks (IPN) from the crypto
// gateway. The body is authenticated with an HMAC-SHA256 of the raw payload
// keyed by the shared IPN secret.
func GatewayWebhook(svc GatewayWebhookService, ipnSecret string, guard gatewayWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway signature missing"))
			return
		}
		if !validateGatewaySignature(payload, ipnSecret, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "invalid gateway signature"))
			return
		}

		var notification gatewaywebhook.PaymentNotification
		if err := json.Unmarshal(payload, &notification); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode notification"))
			return
		}

		// One callback ID per (payment, status) pair: a retry of the same
		// transition is a duplicate, the next transition is not.
		callbackID := strings.TrimSpace(notification.PaymentID.String()) + ":" + strings.TrimSpace(notification.PaymentStatus)

		alreadyProcessed, err := guard.CheckAndMark(ctx, callbackID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleNotification(ctx, &notification); err != nil {
			_ = guard.Delete(ctx, callbackID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithPaymentID(ctx, notification.PaymentID.String()), "gateway callback processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

func validateGatewaySignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
