package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for credit transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.CreditTransaction, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.CreditTransaction, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	ClaimNotification(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a credit transactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CreditTransaction, error) {
	var tx models.CreditTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.CreditTransaction, error) {
	var tx models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// MarkCompleted flips pending to completed. A false return means the
// transition already happened, which is how replayed webhooks read as no-ops.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("id = ? AND status = ?", id, enums.CreditTransactionStatusPending).
		UpdateColumns(map[string]any{
			"status":       enums.CreditTransactionStatusCompleted,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ClaimNotification(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("id = ? AND notification_sent_at IS NULL", id).
		UpdateColumn("notification_sent_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
