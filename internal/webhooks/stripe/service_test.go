package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/internal/checkout"
	"github.com/avertine/storefront-backend/internal/credits"
	"github.com/avertine/storefront-backend/internal/customers"
	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
)

type testTx struct {
	db *gorm.DB
}

func (t testTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(fn)
}

type stubSessionReader struct {
	session   *stripe.CheckoutSession
	lineItems []*stripe.LineItem
	fail      error
}

func (s *stubSessionReader) GetCheckoutSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.session, nil
}

func (s *stubSessionReader) ListCheckoutLineItems(ctx context.Context, id string) ([]*stripe.LineItem, error) {
	return s.lineItems, nil
}

type stubEnqueuer struct {
	queued []*models.Order
}

func (s *stubEnqueuer) EnqueueOrderConfirmation(ctx context.Context, order *models.Order) error {
	s.queued = append(s.queued, order)
	return nil
}

type stubCredits struct {
	finalized []string
	fail      error
}

func (s *stubCredits) Finalize(ctx context.Context, paymentIntentID string) (credits.FinalizeResult, error) {
	if s.fail != nil {
		return credits.FinalizeResult{}, s.fail
	}
	s.finalized = append(s.finalized, paymentIntentID)
	return credits.FinalizeResult{Completed: true, NotificationSent: true}, nil
}

func setupWebhookTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  email TEXT NOT NULL,
  first_name TEXT,
  last_name TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  order_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT NOT NULL,
  payment_provider TEXT NOT NULL DEFAULT 'none',
  payment_reference TEXT UNIQUE,
  currency TEXT NOT NULL DEFAULT 'USD',
  subtotal NUMERIC NOT NULL,
  tax_total NUMERIC NOT NULL,
  shipping_total NUMERIC NOT NULL,
  payment_fee NUMERIC NOT NULL,
  discount_total NUMERIC NOT NULL,
  total NUMERIC NOT NULL,
  shipping_method TEXT,
  coupon_code TEXT,
  customer_id TEXT,
  customer_email TEXT NOT NULL,
  customer_name TEXT,
  billing_address TEXT,
  shipping_address TEXT,
  delivery_instructions TEXT,
  confirmation_email_sent_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  total_price NUMERIC NOT NULL,
  options TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newWebhookService(t *testing.T, db *gorm.DB, gateway sessionReader, creditsSvc credits.Service) (*Service, *stubEnqueuer) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "webhook-test", Level: zerolog.ErrorLevel})
	ordersRepo := orders.NewRepository(db)
	enqueuer := &stubEnqueuer{}
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:     ordersRepo,
		Enqueuer: enqueuer,
		Logger:   logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:        testTx{db: db},
		Orders:    ordersRepo,
		OrdersSvc: ordersSvc,
		Credits:   creditsSvc,
		Customers: customers.NewRepository(db),
		Gateway:   gateway,
		Logger:    logg,
	})
	require.NoError(t, err)
	return svc, enqueuer
}

func createPendingOrder(t *testing.T, db *gorm.DB, reference string) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:               uuid.New(),
		StoreID:          uuid.New(),
		OrderNumber:      fmt.Sprintf("ORD-%s", uuid.NewString()[:8]),
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		PaymentMethod:    "card",
		PaymentProvider:  enums.PaymentProviderStripe,
		PaymentReference: &reference,
		Currency:         "USD",
		Subtotal:         decimal.RequireFromString("40.00"),
		TaxTotal:         decimal.RequireFromString("3.00"),
		ShippingTotal:    decimal.RequireFromString("5.00"),
		PaymentFee:       decimal.Zero,
		DiscountTotal:    decimal.Zero,
		Total:            decimal.RequireFromString("48.00"),
		CustomerEmail:    "buyer@example.com",
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func checkoutCompletedEvent(t *testing.T, sessionID string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]string{"id": sessionID})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_" + sessionID,
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func reconstructableSession(t *testing.T, storeID uuid.UUID, sessionID string) *stripe.CheckoutSession {
	t.Helper()
	items := checkout.BuildOrderItems([]checkout.CartItem{
		{SKU: "TEE-1", Name: "Logo Tee", Qty: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{SKU: "CAP-1", Name: "Cap", Qty: 1, UnitPrice: decimal.RequireFromString("12.50")},
	})
	encoded, err := checkout.EncodeSessionItems(items, "USD")
	require.NoError(t, err)

	return &stripe.CheckoutSession{
		ID:       sessionID,
		Currency: stripe.CurrencyUSD,
		Metadata: map[string]string{
			checkout.MetaStoreID:           storeID.String(),
			checkout.MetaOrderNumber:       "ORD-20250812-RECON",
			checkout.MetaCustomerEmail:     "buyer@example.com",
			checkout.MetaPaymentMethodCode: "card",
			checkout.MetaTaxTotal:          "425",
			checkout.MetaShippingTotal:     "700",
			checkout.MetaPaymentFee:        "150",
			checkout.MetaDiscountTotal:     "500",
			checkout.MetaItems:             encoded,
		},
	}
}

func TestHandleCheckoutCompletedConfirmsExistingOrder(t *testing.T) {
	db := setupWebhookTestDB(t)
	order := createPendingOrder(t, db, "cs_existing")

	svc, enqueuer := newWebhookService(t, db, &stubSessionReader{}, &stubCredits{})

	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_existing")))

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.NotNil(t, stored.ConfirmationEmailSentAt)
	assert.Len(t, enqueuer.queued, 1)
}

func TestHandleCheckoutCompletedDuplicateDeliveryIsNoop(t *testing.T) {
	db := setupWebhookTestDB(t)
	createPendingOrder(t, db, "cs_dup")

	svc, enqueuer := newWebhookService(t, db, &stubSessionReader{}, &stubCredits{})

	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_dup")))
	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_dup")))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, enqueuer.queued, 1)
}

func TestHandleCheckoutCompletedReconstructsMissingOrder(t *testing.T) {
	db := setupWebhookTestDB(t)
	storeID := uuid.New()
	gateway := &stubSessionReader{session: reconstructableSession(t, storeID, "cs_missing")}

	svc, enqueuer := newWebhookService(t, db, gateway, &stubCredits{})

	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_missing")))

	var stored models.Order
	require.NoError(t, db.Preload("Items").First(&stored, "payment_reference = ?", "cs_missing").Error)
	assert.Equal(t, storeID, stored.StoreID)
	assert.Equal(t, "ORD-20250812-RECON", stored.OrderNumber)
	assert.Equal(t, enums.OrderStatusProcessing, stored.Status)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	require.Len(t, stored.Items, 2)

	// 52.48 + 4.25 + 7.00 + 1.50 - 5.00
	assert.True(t, stored.Subtotal.Equal(decimal.RequireFromString("52.48")), stored.Subtotal.String())
	assert.True(t, stored.Total.Equal(decimal.RequireFromString("60.23")), stored.Total.String())
	expected := stored.Subtotal.Add(stored.TaxTotal).Add(stored.ShippingTotal).Add(stored.PaymentFee).Sub(stored.DiscountTotal)
	assert.True(t, stored.Total.Equal(expected))

	assert.Len(t, enqueuer.queued, 1)

	// A duplicate delivery finds the reconstructed order and does nothing.
	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_missing")))
	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Len(t, enqueuer.queued, 1)
}

func TestReconstructionAppliesGuestFallback(t *testing.T) {
	db := setupWebhookTestDB(t)
	storeID := uuid.New()

	customer := &models.Customer{ID: uuid.New(), StoreID: storeID, Email: "someone.else@example.com"}
	require.NoError(t, db.Create(customer).Error)

	session := reconstructableSession(t, storeID, "cs_guest")
	session.Metadata[checkout.MetaCustomerID] = customer.ID.String()

	svc, _ := newWebhookService(t, db, &stubSessionReader{session: session}, &stubCredits{})

	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_guest")))

	var stored models.Order
	require.NoError(t, db.First(&stored, "payment_reference = ?", "cs_guest").Error)
	assert.Nil(t, stored.CustomerID)
}

func TestReconstructionFailsWithoutItems(t *testing.T) {
	db := setupWebhookTestDB(t)
	session := reconstructableSession(t, uuid.New(), "cs_empty")
	session.Metadata[checkout.MetaItems] = "[]"

	svc, _ := newWebhookService(t, db, &stubSessionReader{session: session}, &stubCredits{})

	err := svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_empty"))
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeValidation, coded.Code())
}

func TestReconstructionFallsBackToGatewayLineItems(t *testing.T) {
	db := setupWebhookTestDB(t)
	session := reconstructableSession(t, uuid.New(), "cs_lines")
	delete(session.Metadata, checkout.MetaItems)

	gateway := &stubSessionReader{
		session: session,
		lineItems: []*stripe.LineItem{
			{Description: "Logo Tee", Quantity: 2, Price: &stripe.Price{UnitAmount: 1999}},
			{Description: checkout.LineNameTax, Quantity: 1, Price: &stripe.Price{UnitAmount: 425}},
			{Description: checkout.LineNameShipping, Quantity: 1, Price: &stripe.Price{UnitAmount: 700}},
		},
	}

	svc, _ := newWebhookService(t, db, gateway, &stubCredits{})

	require.NoError(t, svc.HandleEvent(context.Background(), checkoutCompletedEvent(t, "cs_lines")))

	var stored models.Order
	require.NoError(t, db.Preload("Items").First(&stored, "payment_reference = ?", "cs_lines").Error)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Logo Tee", stored.Items[0].Name)
	assert.True(t, stored.Subtotal.Equal(decimal.RequireFromString("39.98")), stored.Subtotal.String())
}

func TestHandlePaymentIntentSucceededFinalizesCredits(t *testing.T) {
	db := setupWebhookTestDB(t)
	creditsSvc := &stubCredits{}
	svc, _ := newWebhookService(t, db, &stubSessionReader{}, creditsSvc)

	raw, err := json.Marshal(map[string]string{"id": "pi_123"})
	require.NoError(t, err)
	event := &stripe.Event{
		ID:   "evt_pi_123",
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	}

	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, []string{"pi_123"}, creditsSvc.finalized)
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	db := setupWebhookTestDB(t)
	svc, enqueuer := newWebhookService(t, db, &stubSessionReader{}, &stubCredits{})

	event := &stripe.Event{
		Type: stripe.EventType("invoice.created"),
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, enqueuer.queued)
}

func TestHandleEventRejectsMissingData(t *testing.T) {
	db := setupWebhookTestDB(t)
	svc, _ := newWebhookService(t, db, &stubSessionReader{}, &stubCredits{})

	err := svc.HandleEvent(context.Background(), &stripe.Event{Type: stripe.EventTypeCheckoutSessionCompleted})
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeValidation, coded.Code())
}
