package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avertine/storefront-backend/pkg/enums"
)

// CreditTransaction represents a wallet top-up. stripe_payment_intent_id plays
// the same idempotency-key role payment_reference does for orders, and
// notification_sent_at is the matching claim flag.
type CreditTransaction struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID  uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	StoreID uuid.UUID `gorm:"column:store_id;type:uuid;not null"`

	Amount   decimal.Decimal               `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency string                        `gorm:"column:currency;not null;default:'USD'"`
	Status   enums.CreditTransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	StripePaymentIntentID string `gorm:"column:stripe_payment_intent_id;uniqueIndex;not null"`

	NotificationSentAt *time.Time `gorm:"column:notification_sent_at"`
	CompletedAt        *time.Time `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
