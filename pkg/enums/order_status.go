package enums

import "fmt"

// OrderStatus tracks the payment dimension of an order's lifecycle.
// Fulfillment (shipped/delivered) is tracked separately and is out of scope
// for the settlement core.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusSucceeded  OrderStatus = "succeeded"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusExpired    OrderStatus = "expired"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusSucceeded,
	OrderStatusCancelled,
	OrderStatusFailed,
	OrderStatusExpired,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the payment lifecycle.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusSucceeded, OrderStatusCancelled, OrderStatusFailed, OrderStatusExpired, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
