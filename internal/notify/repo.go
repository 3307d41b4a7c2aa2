package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/pkg/db/models"
	"github.com/avertine/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for the email outbox.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, msg *models.EmailMessage) error
	FetchQueued(ctx context.Context, limit, maxAttempts int) ([]models.EmailMessage, error)
	ClaimSending(ctx context.Context, id uuid.UUID) (bool, error)
	RequeueStaleSending(ctx context.Context, cutoff time.Time) (int64, error)
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, now time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, sendErr error) error
	MarkDead(ctx context.Context, id uuid.UUID, sendErr error) error
	DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an email outbox repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, msg *models.EmailMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *repository) FetchQueued(ctx context.Context, limit, maxAttempts int) ([]models.EmailMessage, error) {
	var rows []models.EmailMessage
	query := r.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", enums.EmailStatusQueued, maxAttempts).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimSending flips queued to sending. False means a competing dispatcher
// already owns the row. The update bumps updated_at, which is what
// RequeueStaleSending measures claim age against.
func (r *repository) ClaimSending(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("id = ? AND status = ?", id, enums.EmailStatusQueued).
		Updates(map[string]any{"status": enums.EmailStatusSending})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RequeueStaleSending returns rows abandoned mid-send to the queue. A row
// stuck in sending past the cutoff means its dispatcher died between claim
// and mark; the attempt still counts so a crash-looping message eventually
// dead-letters instead of recycling forever.
func (r *repository) RequeueStaleSending(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("status = ? AND updated_at < ?", enums.EmailStatusSending, cutoff).
		Updates(map[string]any{
			"status":     enums.EmailStatusQueued,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "dispatcher claim expired",
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, now time.Time) error {
	updates := map[string]any{
		"status":  enums.EmailStatusSent,
		"sent_at": now,
	}
	if providerMessageID != "" {
		updates["provider_message_id"] = providerMessageID
	}
	return r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkFailed requeues the row for a later poll and counts the attempt.
func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, sendErr error) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.EmailStatusQueued,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": errorMessage(sendErr),
		}).Error
}

func (r *repository) MarkDead(ctx context.Context, id uuid.UUID, sendErr error) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.EmailStatusDead,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": errorMessage(sendErr),
		}).Error
}

func (r *repository) DeleteDeliveredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND sent_at < ?", enums.EmailStatusSent, cutoff).
		Delete(&models.EmailMessage{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
