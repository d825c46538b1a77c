package gateway

import (
	"strings"

	"github.com/novamart/novamart-backend/pkg/enums"
)

// Raw status values emitted by the gateway.
const (
	RawStatusWaiting       = "waiting"
	RawStatusConfirming    = "confirming"
	RawStatusConfirmed     = "confirmed"
	RawStatusSending       = "sending"
	RawStatusPartiallyPaid = "partially_paid"
	RawStatusFinished      = "finished"
	RawStatusFailed        = "failed"
	RawStatusRefunded      = "refunded"
	RawStatusExpired       = "expired"
)

var statusMap = map[string]enums.PaymentStatus{
	RawStatusWaiting:       enums.PaymentStatusPending,
	RawStatusConfirming:    enums.PaymentStatusProcessing,
	RawStatusConfirmed:     enums.PaymentStatusProcessing,
	RawStatusSending:       enums.PaymentStatusProcessing,
	RawStatusPartiallyPaid: enums.PaymentStatusProcessing,
	RawStatusFinished:      enums.PaymentStatusSucceeded,
	RawStatusFailed:        enums.PaymentStatusFailed,
	RawStatusRefunded:      enums.PaymentStatusCanceled,
	RawStatusExpired:       enums.PaymentStatusExpired,
}

// MapStatus translates a raw gateway status into the internal payment status.
// Unknown values map to pending so an unrecognized status never advances or
// terminates a payment.
func MapStatus(raw string) enums.PaymentStatus {
	if status, ok := statusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return enums.PaymentStatusPending
}
