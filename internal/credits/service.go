package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/internal/customers"
	"github.com/avertine/storefront-backend/pkg/db/models"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
)

// ReceiptEnqueuer queues the credit purchase receipt email.
type ReceiptEnqueuer interface {
	EnqueueCreditPurchase(ctx context.Context, tx *models.CreditTransaction, recipient string) error
}

// Service finalizes credit top-ups confirmed by the payment gateway.
type Service interface {
	Finalize(ctx context.Context, paymentIntentID string) (FinalizeResult, error)
}

// FinalizeResult reports what this caller accomplished; all fields false means
// a replay.
type FinalizeResult struct {
	Completed        bool
	NotificationSent bool
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo      Repository
	Customers customers.Repository
	Enqueuer  ReceiptEnqueuer
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	customers customers.Repository
	enqueuer  ReceiptEnqueuer
	logg      *logger.Logger
}

// NewService builds the credit finalization service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	if params.Enqueuer == nil {
		return nil, fmt.Errorf("receipt enqueuer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      params.Repo,
		customers: params.Customers,
		enqueuer:  params.Enqueuer,
		logg:      params.Logger,
	}, nil
}

// Finalize completes the transaction matching the payment intent and sends
// the receipt exactly once. Unknown intents are not an error; the gateway
// also confirms payments that are not credit purchases.
func (s *service) Finalize(ctx context.Context, paymentIntentID string) (FinalizeResult, error) {
	if paymentIntentID == "" {
		return FinalizeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	tx, err := s.repo.FindByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", paymentIntentID),
				"payment intent has no credit transaction, skipping")
			return FinalizeResult{}, nil
		}
		return FinalizeResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading credit transaction")
	}

	ctx = s.logg.WithField(ctx, "credit_transaction_id", tx.ID.String())

	completed, err := s.repo.MarkCompleted(ctx, tx.ID, time.Now().UTC())
	if err != nil {
		return FinalizeResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "completing credit transaction")
	}

	claimed, err := s.repo.ClaimNotification(ctx, tx.ID, time.Now().UTC())
	if err != nil {
		return FinalizeResult{Completed: completed}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming credit notification")
	}

	result := FinalizeResult{Completed: completed, NotificationSent: claimed}
	if !claimed {
		s.logg.Info(ctx, "credit transaction already finalized")
		return result, nil
	}

	recipient, err := s.recipientFor(ctx, tx)
	if err != nil {
		s.logg.Error(ctx, "resolving credit receipt recipient", err)
		return result, nil
	}
	if err := s.enqueuer.EnqueueCreditPurchase(ctx, tx, recipient); err != nil {
		s.logg.Error(ctx, "enqueueing credit purchase receipt", err)
		return result, nil
	}

	s.logg.Info(ctx, "credit purchase finalized")
	return result, nil
}

func (s *service) recipientFor(ctx context.Context, tx *models.CreditTransaction) (string, error) {
	customer, err := s.customers.FindByID(ctx, tx.UserID)
	if err != nil {
		return "", err
	}
	return customer.Email, nil
}
