package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/pkg/db/models"
)

// Repository defines persistence operations for orders, payments, and the
// settlement audit tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	AppendTracking(ctx context.Context, entry *models.OrderTracking) error
	RecordSystemEvent(ctx context.Context, event *models.SystemEvent) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindPaymentByExternalID(ctx context.Context, externalPaymentID string) (*models.Payment, error)
	FindPaymentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindUnreconciledPayments(ctx context.Context, limit int) ([]models.Payment, error)
	FindDefaultWarehouse(ctx context.Context) (*models.Warehouse, error)
	FindWarehouseByCode(ctx context.Context, code string) (*models.Warehouse, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	UpdatePayment(ctx context.Context, paymentID uuid.UUID, updates map[string]any) error
}

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
