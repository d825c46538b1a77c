package enums

import "fmt"

// SystemEventType labels operational audit entries recorded by the settlement core.
type SystemEventType string

const (
	SystemEventWebhookReceived  SystemEventType = "webhook_received"
	SystemEventReleaseFailed    SystemEventType = "inventory_release_failed"
	SystemEventUnrecordedRefund SystemEventType = "unrecorded_refund"
	SystemEventSweepCompleted   SystemEventType = "timeout_sweep_completed"
	SystemEventReconcileSkipped SystemEventType = "reconciliation_skipped"
)

var validSystemEventTypes = []SystemEventType{
	SystemEventWebhookReceived,
	SystemEventReleaseFailed,
	SystemEventUnrecordedRefund,
	SystemEventSweepCompleted,
	SystemEventReconcileSkipped,
}

// String implements fmt.Stringer.
func (s SystemEventType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SystemEventType.
func (s SystemEventType) IsValid() bool {
	for _, candidate := range validSystemEventTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSystemEventType converts raw input into a SystemEventType.
func ParseSystemEventType(value string) (SystemEventType, error) {
	for _, candidate := range validSystemEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid system event type %q", value)
}
