package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/internal/orders"
	"github.com/avertine/storefront-backend/internal/stores"
	"github.com/avertine/storefront-backend/pkg/config"
	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
	"github.com/avertine/storefront-backend/pkg/mailer"
	"github.com/avertine/storefront-backend/pkg/metrics"
)

type stubMailer struct {
	sent []mailer.Message
	fail error
}

func (s *stubMailer) Send(ctx context.Context, msg mailer.Message) (string, error) {
	if s.fail != nil {
		return "", s.fail
	}
	s.sent = append(s.sent, msg)
	return "sg-123", nil
}

func newDispatcher(t *testing.T, db *gorm.DB, m mailer.Mailer, maxAttempts int) (*Dispatcher, Repository) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "notify-test", Level: zerolog.ErrorLevel})
	repo := NewRepository(db)
	enqueuer, err := NewEnqueuer(repo, logg)
	require.NoError(t, err)

	dispatcher, err := NewDispatcher(DispatcherParams{
		Config: config.NotifyConfig{
			PollInterval: time.Millisecond,
			BatchSize:    10,
			MaxAttempts:  maxAttempts,
			RetryBase:    time.Millisecond,
		},
		Logger:   logg,
		Repo:     repo,
		Enqueuer: enqueuer,
		Orders:   orders.NewRepository(db),
		Stores:   stores.NewRepository(db),
		Mailer:   m,
		Metrics:  metrics.NewEmailMetrics(nil),
	})
	require.NoError(t, err)
	return dispatcher, repo
}

func createStore(t *testing.T, db *gorm.DB, invoice, shipment, autoFulfill bool) *models.Store {
	t.Helper()

	store := &models.Store{
		ID:                   uuid.New(),
		Name:                 "Test Store",
		Currency:             "USD",
		SenderEmail:          "orders@example.com",
		InvoiceEmailEnabled:  invoice,
		ShipmentEmailEnabled: shipment,
		AutoFulfillEnabled:   autoFulfill,
	}
	require.NoError(t, db.Create(store).Error)
	return store
}

func createProcessingOrder(t *testing.T, db *gorm.DB, storeID uuid.UUID) *models.Order {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		StoreID:       storeID,
		OrderNumber:   "SF-" + uuid.NewString()[:8],
		Status:        enums.OrderStatusProcessing,
		PaymentStatus: enums.PaymentStatusPaid,
		PaymentMethod: "card",
		Currency:      "USD",
		Subtotal:      decimal.NewFromFloat(40.00),
		TaxTotal:      decimal.NewFromFloat(3.30),
		ShippingTotal: decimal.NewFromFloat(5.00),
		PaymentFee:    decimal.Zero,
		DiscountTotal: decimal.Zero,
		Total:         decimal.NewFromFloat(48.30),
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Jordan Buyer",
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func queueConfirmation(t *testing.T, db *gorm.DB, repo Repository, order *models.Order) *models.EmailMessage {
	t.Helper()

	msg := &models.EmailMessage{
		ID:        uuid.New(),
		StoreID:   order.StoreID,
		Template:  enums.EmailTemplateOrderConfirmation,
		Recipient: order.CustomerEmail,
		Variables: orderConfirmationVariables(order),
		Status:    enums.EmailStatusQueued,
		OrderID:   &order.ID,
	}
	require.NoError(t, repo.Insert(context.Background(), msg))
	return msg
}

func TestDispatchBatchSendsAndMarksSent(t *testing.T) {
	db := setupNotifyTestDB(t)
	mail := &stubMailer{}
	dispatcher, repo := newDispatcher(t, db, mail, 5)

	store := createStore(t, db, false, false, false)
	order := createProcessingOrder(t, db, store.ID)
	msg := queueConfirmation(t, db, repo, order)

	processed, err := dispatcher.DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, mail.sent, 1)
	assert.Equal(t, order.CustomerEmail, mail.sent[0].Recipient)

	var got models.EmailMessage
	require.NoError(t, db.Where("id = ?", msg.ID).First(&got).Error)
	assert.Equal(t, enums.EmailStatusSent, got.Status)
	require.NotNil(t, got.ProviderMessageID)
	assert.Equal(t, "sg-123", *got.ProviderMessageID)
	require.NotNil(t, got.SentAt)

	// No flags, no follow-ups.
	var count int64
	require.NoError(t, db.Model(&models.EmailMessage{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDispatchBatchRecoversAbandonedClaim(t *testing.T) {
	db := setupNotifyTestDB(t)
	mail := &stubMailer{}
	dispatcher, repo := newDispatcher(t, db, mail, 5)

	store := createStore(t, db, false, false, false)
	order := createProcessingOrder(t, db, store.ID)
	msg := queueConfirmation(t, db, repo, order)

	// A previous dispatcher claimed the row and died before marking it.
	claimed, err := repo.ClaimSending(context.Background(), msg.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, db.Model(&models.EmailMessage{}).
		Where("id = ?", msg.ID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-time.Hour)).Error)

	// The recovery pass requeues the stale claim and the same batch delivers it.
	processed, err := dispatcher.DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	require.Len(t, mail.sent, 1)

	var got models.EmailMessage
	require.NoError(t, db.Where("id = ?", msg.ID).First(&got).Error)
	assert.Equal(t, enums.EmailStatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestDispatchBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	db := setupNotifyTestDB(t)
	mail := &stubMailer{fail: pkgerrors.New(pkgerrors.CodeDependency, "provider down")}
	dispatcher, repo := newDispatcher(t, db, mail, 2)

	store := createStore(t, db, false, false, false)
	order := createProcessingOrder(t, db, store.ID)
	msg := queueConfirmation(t, db, repo, order)

	// First pass requeues, second pass exhausts the budget.
	_, err := dispatcher.DispatchBatch(context.Background())
	require.NoError(t, err)
	var mid models.EmailMessage
	require.NoError(t, db.Where("id = ?", msg.ID).First(&mid).Error)
	assert.Equal(t, enums.EmailStatusQueued, mid.Status)
	assert.Equal(t, 1, mid.Attempts)

	_, err = dispatcher.DispatchBatch(context.Background())
	require.NoError(t, err)

	var got models.EmailMessage
	require.NoError(t, db.Where("id = ?", msg.ID).First(&got).Error)
	assert.Equal(t, enums.EmailStatusDead, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "provider down")
}

func TestDispatchBatchNonTransientFailureDeadLettersImmediately(t *testing.T) {
	db := setupNotifyTestDB(t)
	mail := &stubMailer{fail: pkgerrors.New(pkgerrors.CodeValidation, "no sendgrid template configured")}
	dispatcher, repo := newDispatcher(t, db, mail, 5)

	store := createStore(t, db, false, false, false)
	order := createProcessingOrder(t, db, store.ID)
	msg := queueConfirmation(t, db, repo, order)

	_, err := dispatcher.DispatchBatch(context.Background())
	require.NoError(t, err)

	var got models.EmailMessage
	require.NoError(t, db.Where("id = ?", msg.ID).First(&got).Error)
	assert.Equal(t, enums.EmailStatusDead, got.Status)
}

func TestDispatchBatchRunsStoreGatedFollowUps(t *testing.T) {
	db := setupNotifyTestDB(t)
	mail := &stubMailer{}
	dispatcher, repo := newDispatcher(t, db, mail, 5)

	store := createStore(t, db, true, true, true)
	order := createProcessingOrder(t, db, store.ID)
	queueConfirmation(t, db, repo, order)

	processed, err := dispatcher.DispatchBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	var queued []models.EmailMessage
	require.NoError(t, db.Where("status = ?", enums.EmailStatusQueued).Find(&queued).Error)
	templates := make(map[enums.EmailTemplate]bool, len(queued))
	for _, row := range queued {
		templates[row.Template] = true
	}
	assert.True(t, templates[enums.EmailTemplateInvoice])
	assert.True(t, templates[enums.EmailTemplateShipment])

	var gotOrder models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&gotOrder).Error)
	assert.Equal(t, enums.OrderStatusShipped, gotOrder.Status)
}
