package paymentmethods

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avertine/storefront-backend/pkg/db/models"
)

// Repository reads a store's configured payment methods.
type Repository interface {
	FindByStoreAndCode(ctx context.Context, storeID uuid.UUID, code string) (*models.PaymentMethod, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.PaymentMethod, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payment methods repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByStoreAndCode(ctx context.Context, storeID uuid.UUID, code string) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND code = ?", storeID, code).
		First(&method).Error
	if err != nil {
		return nil, err
	}
	return &method, nil
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.PaymentMethod, error) {
	var methods []models.PaymentMethod
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("code ASC").
		Find(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}
