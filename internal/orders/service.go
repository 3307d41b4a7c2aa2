package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/pkg/db/models"
	pkgerrors "github.com/avertine/storefront-backend/pkg/errors"
	"github.com/avertine/storefront-backend/pkg/logger"
)

// ConfirmationEnqueuer queues the order confirmation email for async delivery.
type ConfirmationEnqueuer interface {
	EnqueueOrderConfirmation(ctx context.Context, order *models.Order) error
}

// Service owns the payment confirmation path shared by the webhook handler,
// the reconciliation sweep, and offline checkout.
type Service interface {
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (ConfirmResult, error)
}

// ConfirmResult reports what this particular caller accomplished. Both fields
// false means the order was already fully confirmed by someone else.
type ConfirmResult struct {
	Transitioned bool
	EmailClaimed bool
}

// ServiceParams collects the dependencies for NewService.
type ServiceParams struct {
	Repo     Repository
	Enqueuer ConfirmationEnqueuer
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	enqueuer ConfirmationEnqueuer
	logger   *logger.Logger
}

// NewService builds the order confirmation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Enqueuer == nil {
		return nil, fmt.Errorf("confirmation enqueuer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		enqueuer: params.Enqueuer,
		logger:   params.Logger,
	}, nil
}

// ConfirmPayment marks the order paid and claims the confirmation email. Safe
// to call any number of times from any number of processes; repeats are
// no-ops.
func (s *service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (ConfirmResult, error) {
	if orderID == uuid.Nil {
		return ConfirmResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	ctx = s.logger.WithOrderID(ctx, orderID.String())

	transitioned, err := s.repo.MarkProcessing(ctx, orderID)
	if err != nil {
		return ConfirmResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking order processing")
	}
	if !transitioned {
		// Verify the order exists so a bad id surfaces instead of reading
		// as a benign duplicate.
		if _, err := s.repo.FindByID(ctx, orderID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ConfirmResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return ConfirmResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
	}

	claimed, err := s.repo.ClaimConfirmationEmail(ctx, orderID, time.Now().UTC())
	if err != nil {
		return ConfirmResult{Transitioned: transitioned}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming confirmation email")
	}

	result := ConfirmResult{Transitioned: transitioned, EmailClaimed: claimed}
	if !claimed {
		s.logger.Info(ctx, "order already confirmed, nothing to do")
		return result, nil
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		s.logger.Error(ctx, "loading order for confirmation email", err)
		return result, nil
	}
	// A lost enqueue degrades to a missing email, never a failed
	// confirmation.
	if err := s.enqueuer.EnqueueOrderConfirmation(ctx, order); err != nil {
		s.logger.Error(ctx, "enqueueing order confirmation email", err)
		return result, nil
	}

	s.logger.Info(ctx, "order payment confirmed")
	return result, nil
}
