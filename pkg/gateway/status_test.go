package gateway

import (
	"testing"

	"github.com/novamart/novamart-backend/pkg/enums"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want enums.PaymentStatus
	}{
		{"waiting", enums.PaymentStatusPending},
		{"confirming", enums.PaymentStatusProcessing},
		{"confirmed", enums.PaymentStatusProcessing},
		{"sending", enums.PaymentStatusProcessing},
		{"partially_paid", enums.PaymentStatusProcessing},
		{"finished", enums.PaymentStatusSucceeded},
		{"failed", enums.PaymentStatusFailed},
		{"refunded", enums.PaymentStatusCanceled},
		{"expired", enums.PaymentStatusExpired},
		{"FINISHED", enums.PaymentStatusSucceeded},
		{"  waiting ", enums.PaymentStatusPending},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.raw); got != tc.want {
			t.Errorf("MapStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestMapStatusUnknownFailsSafe(t *testing.T) {
	// A status this code has never seen must not advance or terminate a
	// payment, so it maps to pending.
	for _, raw := range []string{"", "settled", "chargeback", "!!"} {
		if got := MapStatus(raw); got != enums.PaymentStatusPending {
			t.Errorf("MapStatus(%q) = %q, want pending", raw, got)
		}
	}
}
