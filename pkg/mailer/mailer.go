package mailer

import (
	"context"

	"github.com/avertine/storefront-backend/pkg/enums"
)

// Message is one transactional email ready for delivery.
type Message struct {
	Template  enums.EmailTemplate
	Recipient string
	Variables map[string]any
}

// Mailer delivers transactional email through a provider. Send returns the
// provider's message id so callers can keep it for forensics.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}
