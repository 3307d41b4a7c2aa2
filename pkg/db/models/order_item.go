package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem captures the immutable snapshot of one purchased line. Unit price
// already folds in any priced custom options selected at checkout; nothing on
// the row is recomputed after creation.
type OrderItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID *uuid.UUID `gorm:"column:product_id;type:uuid"`

	SKU        string            `gorm:"column:sku;not null"`
	Name       string            `gorm:"column:name;not null"`
	Qty        int               `gorm:"column:qty;not null"`
	UnitPrice  decimal.Decimal   `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TotalPrice decimal.Decimal   `gorm:"column:total_price;type:numeric(12,2);not null"`
	Options    map[string]string `gorm:"column:options;type:jsonb;serializer:json"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
