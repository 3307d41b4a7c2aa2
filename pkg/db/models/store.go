package models

import (
	"time"

	"github.com/google/uuid"
)

// Store carries the per-tenant notification settings that gate the optional
// side effects of the dispatcher (invoice email, shipment follow-up,
// auto-fulfillment after the confirmation email goes out).
type Store struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	Currency    string    `gorm:"column:currency;not null;default:'USD'"`
	SenderEmail string    `gorm:"column:sender_email;not null"`

	InvoiceEmailEnabled  bool `gorm:"column:invoice_email_enabled;not null;default:false"`
	ShipmentEmailEnabled bool `gorm:"column:shipment_email_enabled;not null;default:false"`
	AutoFulfillEnabled   bool `gorm:"column:auto_fulfill_enabled;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
