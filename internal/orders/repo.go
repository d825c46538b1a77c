package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/repo"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// Create methods assign IDs app-side so inserts behave the same on postgres
// and the sqlite test driver.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.DB(ctx).Create(&items).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if err := r.DB(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) AppendTracking(ctx context.Context, entry *models.OrderTracking) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) RecordSystemEvent(ctx context.Context, event *models.SystemEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.DB(ctx).Create(event).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).
		Where("external_payment_id = ?", externalPaymentID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.DB(ctx).
		Where("order_id = ?", orderID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.DB(ctx).
		Preload("Items").
		Where("status = ? AND payment_due_at IS NOT NULL AND payment_due_at <= ?", enums.OrderStatusPending, cutoff).
		Order("payment_due_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) FindUnreconciledPayments(ctx context.Context, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	query := r.DB(ctx).
		Where("status = ? AND reconciliation_status = ?", enums.PaymentStatusSucceeded, enums.ReconciliationStatusUnreconciled).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repository) FindDefaultWarehouse(ctx context.Context) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	err := r.DB(ctx).
		Where("is_default = ?", true).
		First(&warehouse).Error
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func (r *repository) FindWarehouseByCode(ctx context.Context, code string) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	err := r.DB(ctx).
		Where("code = ?", code).
		First(&warehouse).Error
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error {
	return r.DB(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(updates).Error
}
