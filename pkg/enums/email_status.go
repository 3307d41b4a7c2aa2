package enums

import "fmt"

// EmailStatus tracks a queued notification through delivery.
type EmailStatus string

const (
	EmailStatusQueued  EmailStatus = "queued"
	EmailStatusSending EmailStatus = "sending"
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusFailed  EmailStatus = "failed"
	EmailStatusDead    EmailStatus = "dead"
)

var validEmailStatuses = []EmailStatus{
	EmailStatusQueued,
	EmailStatusSending,
	EmailStatusSent,
	EmailStatusFailed,
	EmailStatusDead,
}

// String implements fmt.Stringer.
func (e EmailStatus) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EmailStatus.
func (e EmailStatus) IsValid() bool {
	for _, candidate := range validEmailStatuses {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEmailStatus converts raw input into an EmailStatus.
func ParseEmailStatus(value string) (EmailStatus, error) {
	for _, candidate := range validEmailStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid email status %q", value)
}
