package enums

import "fmt"

// PaymentFlow distinguishes gateway-confirmed payments from methods that are
// considered paid the moment the order is placed (bank transfer, cash on
// delivery).
type PaymentFlow string

const (
	PaymentFlowOnline  PaymentFlow = "online"
	PaymentFlowOffline PaymentFlow = "offline"
)

var validPaymentFlows = []PaymentFlow{
	PaymentFlowOnline,
	PaymentFlowOffline,
}

// String implements fmt.Stringer.
func (p PaymentFlow) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentFlow.
func (p PaymentFlow) IsValid() bool {
	for _, candidate := range validPaymentFlows {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentFlow converts raw input into a PaymentFlow.
func ParsePaymentFlow(value string) (PaymentFlow, error) {
	for _, candidate := range validPaymentFlows {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment flow %q", value)
}
