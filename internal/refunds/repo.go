package refunds

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/repo"
	"github.com/novamart/novamart-backend/pkg/db/models"
)

// Repository defines persistence operations for refund records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, refund *models.Refund) (*models.Refund, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error)
}

type repository struct {
	repo.Base
}

// NewRepository builds a refunds repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) (*models.Refund, error) {
	if refund.ID == uuid.Nil {
		refund.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(refund).Error; err != nil {
		return nil, err
	}
	return refund, nil
}

func (r *repository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.Refund, error) {
	var refunds []models.Refund
	err := r.DB(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}
