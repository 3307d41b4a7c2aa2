package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avertine/storefront-backend/pkg/enums"
)

// PaymentMethod maps a store's checkout option code to its gateway provider
// and flow. Offline flows (bank transfer, cash on delivery) are considered
// paid the moment the order is placed.
type PaymentMethod struct {
	ID      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID uuid.UUID `gorm:"column:store_id;type:uuid;not null;uniqueIndex:idx_payment_methods_store_code"`
	Code    string    `gorm:"column:code;not null;uniqueIndex:idx_payment_methods_store_code"`
	Name    string    `gorm:"column:name;not null"`

	Flow     enums.PaymentFlow     `gorm:"column:flow;type:text;not null;default:'online'"`
	Provider enums.PaymentProvider `gorm:"column:provider;type:text;not null;default:'none'"`

	// Flat fee added to the order total when this method is selected.
	FeeAmount decimal.Decimal `gorm:"column:fee_amount;type:numeric(12,2);not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
