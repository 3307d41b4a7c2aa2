package checkout

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/money"
)

// Session metadata keys. The gateway echoes metadata back on the confirming
// event, which is what makes fallback order reconstruction possible when the
// preliminary order was never materialized.
const (
	MetaStoreID              = "store_id"
	MetaOrderNumber          = "order_number"
	MetaCustomerID           = "customer_id"
	MetaCustomerEmail        = "customer_email"
	MetaCustomerName         = "customer_name"
	MetaPaymentMethodCode    = "payment_method_code"
	MetaCouponCode           = "coupon_code"
	MetaShippingMethod       = "shipping_method"
	MetaDeliveryInstructions = "delivery_instructions"
	MetaTaxTotal             = "tax_total"
	MetaShippingTotal        = "shipping_total"
	MetaPaymentFee           = "payment_fee"
	MetaDiscountTotal        = "discount_total"
	MetaItems                = "items"
)

// Reserved display names for the order-level adjustments sent to the gateway
// as separate priced entries.
const (
	LineNameTax        = "Tax"
	LineNameShipping   = "Shipping"
	LineNamePaymentFee = "Payment processing fee"
)

// SessionItem is the compact per-line snapshot embedded in session metadata.
// Amounts are gateway minor units so the round trip shares the normalizer
// with the line items themselves.
type SessionItem struct {
	ProductID  string `json:"product_id,omitempty"`
	SKU        string `json:"sku,omitempty"`
	Name       string `json:"name"`
	Qty        int    `json:"qty"`
	UnitAmount int64  `json:"unit_amount"`
}

// EncodeSessionItems serializes order items for the session metadata bag.
func EncodeSessionItems(items []models.OrderItem, currency string) (string, error) {
	encoded := make([]SessionItem, 0, len(items))
	for _, item := range items {
		entry := SessionItem{
			SKU:        item.SKU,
			Name:       item.Name,
			Qty:        item.Qty,
			UnitAmount: money.ToGatewayAmount(item.UnitPrice, currency),
		}
		if item.ProductID != nil {
			entry.ProductID = item.ProductID.String()
		}
		encoded = append(encoded, entry)
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("encoding session items: %w", err)
	}
	return string(raw), nil
}

// DecodeSessionItems parses the metadata item snapshot written by
// EncodeSessionItems.
func DecodeSessionItems(raw string) ([]SessionItem, error) {
	var items []SessionItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding session items: %w", err)
	}
	return items, nil
}

// buildSessionParams prepares the hosted checkout session for a preliminary
// order. Every amount passes through the gateway normalizer; tax, shipping,
// and the payment fee ride as separate priced entries while the discount is
// carried in metadata only, since the gateway rejects negative line amounts.
func buildSessionParams(order *models.Order, items []models.OrderItem, successURL, cancelURL string) (*stripe.CheckoutSessionParams, error) {
	currency := order.Currency

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items)+3)
	for _, item := range items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Qty)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(money.ToGatewayAmount(item.UnitPrice, currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}
	for _, adjustment := range []struct {
		name   string
		amount int64
	}{
		{LineNameTax, money.ToGatewayAmount(order.TaxTotal, currency)},
		{LineNameShipping, money.ToGatewayAmount(order.ShippingTotal, currency)},
		{LineNamePaymentFee, money.ToGatewayAmount(order.PaymentFee, currency)},
	} {
		if adjustment.amount <= 0 {
			continue
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(adjustment.amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(adjustment.name),
				},
			},
		})
	}

	encodedItems, err := EncodeSessionItems(items, currency)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		MetaStoreID:           order.StoreID.String(),
		MetaOrderNumber:       order.OrderNumber,
		MetaCustomerEmail:     order.CustomerEmail,
		MetaPaymentMethodCode: order.PaymentMethod,
		MetaTaxTotal:          fmt.Sprintf("%d", money.ToGatewayAmount(order.TaxTotal, currency)),
		MetaShippingTotal:     fmt.Sprintf("%d", money.ToGatewayAmount(order.ShippingTotal, currency)),
		MetaPaymentFee:        fmt.Sprintf("%d", money.ToGatewayAmount(order.PaymentFee, currency)),
		MetaDiscountTotal:     fmt.Sprintf("%d", money.ToGatewayAmount(order.DiscountTotal, currency)),
		MetaItems:             encodedItems,
	}
	if order.CustomerID != nil {
		metadata[MetaCustomerID] = order.CustomerID.String()
	}
	if order.CustomerName != "" {
		metadata[MetaCustomerName] = order.CustomerName
	}
	if order.CouponCode != nil {
		metadata[MetaCouponCode] = *order.CouponCode
	}
	if order.ShippingMethod != "" {
		metadata[MetaShippingMethod] = order.ShippingMethod
	}
	if order.DeliveryInstructions != nil {
		metadata[MetaDeliveryInstructions] = *order.DeliveryInstructions
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:     lineItems,
		Metadata:      metadata,
		CustomerEmail: stripe.String(order.CustomerEmail),
	}
	if successURL != "" {
		params.SuccessURL = stripe.String(successURL)
	}
	if cancelURL != "" {
		params.CancelURL = stripe.String(cancelURL)
	}
	return params, nil
}
