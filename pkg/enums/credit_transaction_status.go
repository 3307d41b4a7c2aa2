package enums

import "fmt"

// CreditTransactionStatus tracks a wallet top-up from intent to settlement.
type CreditTransactionStatus string

const (
	CreditTransactionStatusPending   CreditTransactionStatus = "pending"
	CreditTransactionStatusCompleted CreditTransactionStatus = "completed"
	CreditTransactionStatusFailed    CreditTransactionStatus = "failed"
)

var validCreditTransactionStatuses = []CreditTransactionStatus{
	CreditTransactionStatusPending,
	CreditTransactionStatusCompleted,
	CreditTransactionStatusFailed,
}

// String implements fmt.Stringer.
func (c CreditTransactionStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CreditTransactionStatus.
func (c CreditTransactionStatus) IsValid() bool {
	for _, candidate := range validCreditTransactionStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCreditTransactionStatus converts raw input into a CreditTransactionStatus.
func ParseCreditTransactionStatus(value string) (CreditTransactionStatus, error) {
	for _, candidate := range validCreditTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid credit transaction status %q", value)
}
