package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avertine/storefront-backend/api/responses"
	"github.com/avertine/storefront-backend/api/validators"
	checkoutsvc "github.com/avertine/storefront-backend/internal/checkout"
	"github.com/avertine/storefront-backend/pkg/db/models"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
)

// Checkout materializes a preliminary order from the submitted cart and, for
// online payment methods, returns the gateway redirect URL.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var input checkoutsvc.CheckoutInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

type checkoutResponse struct {
	OrderID       uuid.UUID          `json:"order_id"`
	OrderNumber   string             `json:"order_number"`
	Status        string             `json:"status"`
	PaymentStatus string             `json:"payment_status"`
	Currency      string             `json:"currency"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	TaxTotal      decimal.Decimal    `json:"tax_total"`
	ShippingTotal decimal.Decimal    `json:"shipping_total"`
	PaymentFee    decimal.Decimal    `json:"payment_fee"`
	DiscountTotal decimal.Decimal    `json:"discount_total"`
	Total         decimal.Decimal    `json:"total"`
	Items         []orderItemSummary `json:"items"`
	PaymentURL    string             `json:"payment_url,omitempty"`
}

type orderItemSummary struct {
	ItemID    uuid.UUID       `json:"item_id"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

func newCheckoutResponse(result *checkoutsvc.CheckoutResult) checkoutResponse {
	if result == nil || result.Order == nil {
		return checkoutResponse{}
	}
	order := result.Order
	items := make([]orderItemSummary, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, newOrderItemSummary(item))
	}
	return checkoutResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      order.Currency,
		Subtotal:      order.Subtotal,
		TaxTotal:      order.TaxTotal,
		ShippingTotal: order.ShippingTotal,
		PaymentFee:    order.PaymentFee,
		DiscountTotal: order.DiscountTotal,
		Total:         order.Total,
		Items:         items,
		PaymentURL:    result.PaymentURL,
	}
}

func newOrderItemSummary(item models.OrderItem) orderItemSummary {
	return orderItemSummary{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		SKU:       item.SKU,
		Name:      item.Name,
		Qty:       item.Qty,
		UnitPrice: item.UnitPrice,
		Total:     item.TotalPrice,
	}
}
