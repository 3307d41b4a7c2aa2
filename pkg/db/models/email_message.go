package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/avertine/storefront-backend/pkg/enums"
)

// EmailMessage is one queued notification. Finalization paths only insert
// rows; the notifier worker owns delivery, retries, and dead-lettering, so a
// provider outage never blocks or rolls back an order.
type EmailMessage struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID uuid.UUID `gorm:"column:store_id;type:uuid;not null"`

	Template  enums.EmailTemplate `gorm:"column:template;type:text;not null"`
	Recipient string              `gorm:"column:recipient;not null"`
	Variables map[string]any      `gorm:"column:variables;type:jsonb;serializer:json"`

	Status    enums.EmailStatus `gorm:"column:status;type:text;not null;default:'queued'"`
	Attempts  int               `gorm:"column:attempts;not null;default:0"`
	LastError *string           `gorm:"column:last_error"`

	// Delivery id returned by the provider, kept for manual retry forensics.
	ProviderMessageID *string `gorm:"column:provider_message_id"`

	OrderID             *uuid.UUID `gorm:"column:order_id;type:uuid"`
	CreditTransactionID *uuid.UUID `gorm:"column:credit_transaction_id;type:uuid"`

	SentAt    *time.Time `gorm:"column:sent_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
