package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/reconcile"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	"github.com/avertine/storefront-backend/pkg/logger"
)

type stubVerifier struct {
	paid     map[string]bool
	failWith error
	calls    []string
}

func (s *stubVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	s.calls = append(s.calls, reference)
	if s.failWith != nil {
		return false, s.failWith
	}
	return s.paid[reference], nil
}

type stubConfirmEnqueuer struct {
	queued []*models.Order
}

func (s *stubConfirmEnqueuer) EnqueueOrderConfirmation(ctx context.Context, order *models.Order) error {
	s.queued = append(s.queued, order)
	return nil
}

func setupSweepTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := `
CREATE TABLE IF NOT EXISTS orders (
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
);`
	require.NoError(t, db.Exec(ddl).Error)
	require.NoError(t, db.Exec(`CREATE TABLE IF NOT EXISTS order_items (
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
);`).Error)
	return db
}

func staleOrder(t *testing.T, db *gorm.DB, reference string, provider enums.PaymentProvider, age time.Duration) *models.Order {
	t.Helper()
	ref := reference
	order := &models.Order{
		ID:              uuid.New(),
		StoreID:         uuid.New(),
		OrderNumber:     fmt.Sprintf("ORD-%s", uuid.NewString()[:8]),
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusPending,
		PaymentMethod:   "card",
		PaymentProvider: provider,
		Currency:        "USD",
		Subtotal:        decimal.RequireFromString("20.00"),
		TaxTotal:        decimal.Zero,
		ShippingTotal:   decimal.Zero,
		PaymentFee:      decimal.Zero,
		DiscountTotal:   decimal.Zero,
		Total:           decimal.RequireFromString("20.00"),
		CustomerEmail:   "buyer@example.com",
		CreatedAt:       time.Now().UTC().Add(-age),
	}
	if reference != "" {
		order.PaymentReference = &ref
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func newSweepJob(t *testing.T, db *gorm.DB, verifiers reconcile.VerifierSet) (Job, *stubConfirmEnqueuer) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "sweep-test", Level: zerolog.ErrorLevel})
	repo := orders.NewRepository(db)
	enqueuer := &stubConfirmEnqueuer{}
	svc, err := orders.NewService(orders.ServiceParams{Repo: repo, Enqueuer: enqueuer, Logger: logg})
	require.NoError(t, err)

	job, err := NewReconcileJob(ReconcileJobParams{
		Logger:      logg,
		Orders:      repo,
		OrdersSvc:   svc,
		Verifiers:   verifiers,
		Limit:       10,
		GraceWindow: 30 * time.Minute,
	})
	require.NoError(t, err)
	return job, enqueuer
}

func TestReconcileJobConfirmsPaidStaleOrders(t *testing.T) {
	db := setupSweepTestDB(t)
	paid := staleOrder(t, db, "cs_paid", enums.PaymentProviderStripe, time.Hour)
	staleOrder(t, db, "cs_unpaid", enums.PaymentProviderStripe, time.Hour)

	verifier := &stubVerifier{paid: map[string]bool{"cs_paid": true}}
	job, enqueuer := newSweepJob(t, db, reconcile.VerifierSet{enums.PaymentProviderStripe: verifier})

	require.NoError(t, job.Run(context.Background()))

	var confirmed models.Order
	require.NoError(t, db.First(&confirmed, "id = ?", paid.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, confirmed.Status)
	assert.Equal(t, enums.PaymentStatusPaid, confirmed.PaymentStatus)
	assert.NotNil(t, confirmed.ConfirmationEmailSentAt)
	assert.Len(t, enqueuer.queued, 1)

	var untouched models.Order
	require.NoError(t, db.First(&untouched, "payment_reference = ?", "cs_unpaid").Error)
	assert.Equal(t, enums.OrderStatusPending, untouched.Status)
	assert.Nil(t, untouched.ConfirmationEmailSentAt)
}

func TestReconcileJobRespectsGraceWindow(t *testing.T) {
	db := setupSweepTestDB(t)
	staleOrder(t, db, "cs_fresh", enums.PaymentProviderStripe, time.Minute)

	verifier := &stubVerifier{paid: map[string]bool{"cs_fresh": true}}
	job, _ := newSweepJob(t, db, reconcile.VerifierSet{enums.PaymentProviderStripe: verifier})

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, verifier.calls)
}

func TestReconcileJobSkipsUnsupportedProviders(t *testing.T) {
	db := setupSweepTestDB(t)
	staleOrder(t, db, "sq_payment", enums.PaymentProviderSquare, time.Hour)

	verifier := &stubVerifier{}
	job, enqueuer := newSweepJob(t, db, reconcile.VerifierSet{enums.PaymentProviderStripe: verifier})

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, verifier.calls)
	assert.Empty(t, enqueuer.queued)
}

func TestReconcileJobContinuesAfterVerifierFailure(t *testing.T) {
	db := setupSweepTestDB(t)
	// Created earlier so ordering by created_at puts the failing order first.
	staleOrder(t, db, "cs_broken", enums.PaymentProviderStripe, 2*time.Hour)
	healthy := staleOrder(t, db, "cs_ok", enums.PaymentProviderStripe, time.Hour)

	verifier := &stubVerifier{paid: map[string]bool{"cs_ok": true}}
	calls := 0
	failFirst := &flakyVerifier{inner: verifier, failOn: "cs_broken", calls: &calls}

	job, _ := newSweepJob(t, db, reconcile.VerifierSet{enums.PaymentProviderStripe: failFirst})

	err := job.Run(context.Background())
	require.Error(t, err)

	var confirmed models.Order
	require.NoError(t, db.First(&confirmed, "id = ?", healthy.ID).Error)
	assert.Equal(t, enums.OrderStatusProcessing, confirmed.Status)
}

type flakyVerifier struct {
	inner  *stubVerifier
	failOn string
	calls  *int
}

func (f *flakyVerifier) Verify(ctx context.Context, reference string) (bool, error) {
	*f.calls++
	if reference == f.failOn {
		return false, errors.New("gateway timeout")
	}
	return f.inner.Verify(ctx, reference)
}

func TestReconcileJobIsRetrySafe(t *testing.T) {
	db := setupSweepTestDB(t)
	staleOrder(t, db, "cs_retry", enums.PaymentProviderStripe, time.Hour)

	verifier := &stubVerifier{paid: map[string]bool{"cs_retry": true}}
	job, enqueuer := newSweepJob(t, db, reconcile.VerifierSet{enums.PaymentProviderStripe: verifier})

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	// The second run finds nothing stale and sends nothing.
	assert.Len(t, enqueuer.queued, 1)
	assert.Len(t, verifier.calls, 1)
}
