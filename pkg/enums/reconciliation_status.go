package enums

import "fmt"

// ReconciliationStatus classifies a settled payment against its expected amount.
type ReconciliationStatus string

const (
	ReconciliationStatusUnreconciled ReconciliationStatus = "unreconciled"
	ReconciliationStatusMatched      ReconciliationStatus = "matched"
	ReconciliationStatusOverpaid     ReconciliationStatus = "overpaid"
	ReconciliationStatusUnderpaid    ReconciliationStatus = "underpaid"
)

var validReconciliationStatuses = []ReconciliationStatus{
	ReconciliationStatusUnreconciled,
	ReconciliationStatusMatched,
	ReconciliationStatusOverpaid,
	ReconciliationStatusUnderpaid,
}

// String implements fmt.Stringer.
func (r ReconciliationStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReconciliationStatus.
func (r ReconciliationStatus) IsValid() bool {
	for _, candidate := range validReconciliationStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReconciliationStatus converts raw input into a ReconciliationStatus.
func ParseReconciliationStatus(value string) (ReconciliationStatus, error) {
	for _, candidate := range validReconciliationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reconciliation status %q", value)
}
