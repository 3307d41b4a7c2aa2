package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	checkoutsvc "github.com/avertine/storefront-backend/internal/checkout"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
)

type fakeCheckoutService struct {
	input  *checkoutsvc.CheckoutInput
	result *checkoutsvc.CheckoutResult
	err    error
}

func (f *fakeCheckoutService) Checkout(ctx context.Context, input checkoutsvc.CheckoutInput) (*checkoutsvc.CheckoutResult, error) {
	f.input = &input
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func checkoutPayload() map[string]any {
	return map[string]any{
		"store_id":            uuid.NewString(),
		"customer_email":      "shopper@example.com",
		"payment_method_code": "stripe",
		"items": []map[string]any{
			{"sku": "SKU-1", "name": "Mug", "qty": 2, "unit_price": "19.99"},
		},
	}
}

func TestCheckout_CreatesOrder(t *testing.T) {
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20260831-ABCDE",
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		Currency:      "USD",
		Subtotal:      decimal.RequireFromString("39.98"),
		Total:         decimal.RequireFromString("39.98"),
		Items: []models.OrderItem{
			{ID: uuid.New(), SKU: "SKU-1", Name: "Mug", Qty: 2, UnitPrice: decimal.RequireFromString("19.99"), TotalPrice: decimal.RequireFromString("39.98")},
		},
	}
	svc := &fakeCheckoutService{result: &checkoutsvc.CheckoutResult{Order: order, PaymentURL: "https://checkout.stripe.com/pay/cs_test_1"}}
	handler := Checkout(svc, nil)

	body, err := json.Marshal(checkoutPayload())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.input)
	require.Equal(t, "shopper@example.com", svc.input.CustomerEmail)
	require.Len(t, svc.input.Items, 1)

	var envelope struct {
		Data struct {
			OrderNumber string `json:"order_number"`
			Total       string `json:"total"`
			PaymentURL  string `json:"payment_url"`
			Items       []struct {
				SKU string `json:"sku"`
				Qty int    `json:"qty"`
			} `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "ORD-20260831-ABCDE", envelope.Data.OrderNumber)
	require.Equal(t, "39.98", envelope.Data.Total)
	require.Equal(t, "https://checkout.stripe.com/pay/cs_test_1", envelope.Data.PaymentURL)
	require.Len(t, envelope.Data.Items, 1)
	require.Equal(t, "SKU-1", envelope.Data.Items[0].SKU)
}

func TestCheckout_RejectsMissingFields(t *testing.T) {
	svc := &fakeCheckoutService{}
	handler := Checkout(svc, nil)

	payload := checkoutPayload()
	delete(payload, "customer_email")
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Nil(t, svc.input)
}

func TestCheckout_RejectsUnknownFields(t *testing.T) {
	svc := &fakeCheckoutService{}
	handler := Checkout(svc, nil)

	payload := checkoutPayload()
	payload["grand_total"] = "1.00"
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Nil(t, svc.input)
}
