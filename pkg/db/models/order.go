package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avertine/storefront-backend/pkg/enums"
	"github.com/avertine/storefront-backend/pkg/types"
)

// Order represents one customer purchase attempt. payment_reference carries
// the gateway's session or intent id and is the idempotency key for the whole
// confirmation engine; confirmation_email_sent_at doubles as the claim flag
// that serializes notification dispatch across competing confirmers.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID         uuid.UUID             `gorm:"column:store_id;type:uuid;not null"`
	OrderNumber     string                `gorm:"column:order_number;uniqueIndex;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod   string                `gorm:"column:payment_method;not null"`
	PaymentProvider enums.PaymentProvider `gorm:"column:payment_provider;type:text;not null;default:'none'"`
	// Set exactly once at creation, never reused across orders.
	PaymentReference *string `gorm:"column:payment_reference;uniqueIndex"`

	Currency       string          `gorm:"column:currency;not null;default:'USD'"`
	Subtotal       decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxTotal       decimal.Decimal `gorm:"column:tax_total;type:numeric(12,2);not null"`
	ShippingTotal  decimal.Decimal `gorm:"column:shipping_total;type:numeric(12,2);not null"`
	PaymentFee     decimal.Decimal `gorm:"column:payment_fee;type:numeric(12,2);not null"`
	DiscountTotal  decimal.Decimal `gorm:"column:discount_total;type:numeric(12,2);not null"`
	Total          decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	ShippingMethod string          `gorm:"column:shipping_method"`
	CouponCode     *string         `gorm:"column:coupon_code"`

	CustomerID    *uuid.UUID `gorm:"column:customer_id;type:uuid"`
	CustomerEmail string     `gorm:"column:customer_email;not null"`
	CustomerName  string     `gorm:"column:customer_name"`

	BillingAddress       *types.Address `gorm:"column:billing_address;type:jsonb;serializer:json"`
	ShippingAddress      *types.Address `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	DeliveryInstructions *string        `gorm:"column:delivery_instructions"`

	ConfirmationEmailSentAt *time.Time `gorm:"column:confirmation_email_sent_at"`

	Items     []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}
