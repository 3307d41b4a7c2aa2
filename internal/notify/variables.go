package notify

import (
	"github.com/avertine/storefront-backend/pkg/db/models"
)

// Variable builders are pure so templates can be rendered and asserted
// without touching the provider.

func orderConfirmationVariables(order *models.Order) map[string]any {
	vars := map[string]any{
		"order_number":   order.OrderNumber,
		"customer_name":  order.CustomerName,
		"currency":       order.Currency,
		"subtotal":       order.Subtotal.StringFixed(2),
		"tax_total":      order.TaxTotal.StringFixed(2),
		"shipping_total": order.ShippingTotal.StringFixed(2),
		"discount_total": order.DiscountTotal.StringFixed(2),
		"total":          order.Total.StringFixed(2),
		"payment_method": order.PaymentMethod,
		"items":          orderItemVariables(order.Items),
	}
	if !order.PaymentFee.IsZero() {
		vars["payment_fee"] = order.PaymentFee.StringFixed(2)
	}
	if order.ShippingMethod != "" {
		vars["shipping_method"] = order.ShippingMethod
	}
	if order.DeliveryInstructions != nil && *order.DeliveryInstructions != "" {
		vars["delivery_instructions"] = *order.DeliveryInstructions
	}
	if order.ShippingAddress != nil {
		vars["shipping_address"] = order.ShippingAddress
	}
	return vars
}

func invoiceVariables(order *models.Order) map[string]any {
	vars := orderConfirmationVariables(order)
	vars["billing_address"] = order.BillingAddress
	return vars
}

func shipmentVariables(order *models.Order) map[string]any {
	return map[string]any{
		"order_number":  order.OrderNumber,
		"customer_name": order.CustomerName,
		"items":         orderItemVariables(order.Items),
	}
}

func creditPurchaseVariables(tx *models.CreditTransaction) map[string]any {
	return map[string]any{
		"amount":   tx.Amount.StringFixed(2),
		"currency": tx.Currency,
	}
}

func orderItemVariables(items []models.OrderItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"name":        item.Name,
			"sku":         item.SKU,
			"qty":         item.Qty,
			"unit_price":  item.UnitPrice.StringFixed(2),
			"total_price": item.TotalPrice.StringFixed(2),
		}
		if len(item.Options) > 0 {
			entry["options"] = item.Options
		}
		out = append(out, entry)
	}
	return out
}
