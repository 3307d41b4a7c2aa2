package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/types"
)

// CartItem is one inbound cart line. Unit price already includes any priced
// custom options the shopper selected; the options map is kept only as a
// snapshot for the order record.
type CartItem struct {
	ProductID *uuid.UUID        `json:"product_id"`
	SKU       string            `json:"sku"`
	Name      string            `json:"name"`
	Qty       int               `json:"qty" validate:"required,min=1"`
	UnitPrice decimal.Decimal   `json:"unit_price" validate:"required"`
	Options   map[string]string `json:"options"`
}

// CheckoutInput carries everything needed to materialize a preliminary order.
// Monetary fields are inputs to the server-side computation, never trusted
// totals.
type CheckoutInput struct {
	StoreID           uuid.UUID  `json:"store_id" validate:"required"`
	CustomerID        *uuid.UUID `json:"customer_id"`
	CustomerEmail     string     `json:"customer_email" validate:"required,email"`
	CustomerName      string     `json:"customer_name"`
	PaymentMethodCode string     `json:"payment_method_code" validate:"required"`
	Currency          string     `json:"currency"`

	Items []CartItem `json:"items" validate:"required,min=1,dive"`

	TaxTotal       decimal.Decimal `json:"tax_total"`
	ShippingTotal  decimal.Decimal `json:"shipping_total"`
	DiscountTotal  decimal.Decimal `json:"discount_total"`
	ShippingMethod string          `json:"shipping_method"`
	CouponCode     *string         `json:"coupon_code"`

	BillingAddress       *types.Address `json:"billing_address"`
	ShippingAddress      *types.Address `json:"shipping_address"`
	DeliveryInstructions *string        `json:"delivery_instructions"`
}

// CheckoutResult is returned to the storefront. PaymentURL is empty for
// offline payment methods since there is nothing left to pay online.
type CheckoutResult struct {
	Order      *models.Order `json:"order"`
	PaymentURL string        `json:"payment_url,omitempty"`
}
