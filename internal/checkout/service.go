package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/novamart/novamart-backend/internal/inventory"
	"github.com/novamart/novamart-backend/internal/orders"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/gateway"
	"github.com/novamart/novamart-backend/pkg/logger"
)

// PaymentOpener opens a payment at the gateway.
type PaymentOpener interface {
	OpenPayment(ctx context.Context, req gateway.OpenPaymentRequest) (*gateway.OpenPaymentResult, error)
}

// ItemInput is one requested order line.
type ItemInput struct {
	SKUID          uuid.UUID
	Name           string
	Qty            int
	UnitPriceCents int
}

// Input is a checkout request.
type Input struct {
	BuyerRef string
	Items    []ItemInput
}

// Result is the committed outcome of a checkout: the order, its payment
// record, and the deposit details the buyer pays against.
type Result struct {
	Order   *models.Order
	Payment *models.Payment
}

// Service executes checkout: order creation, stock reservation, and payment
// opening as one atomic unit.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
}

type service struct {
	log                  *logger.Logger
	txRunner             orders.TxRunner
	repo                 orders.Repository
	ledger               inventory.Ledger
	payments             PaymentOpener
	paymentWindow        time.Duration
	defaultWarehouseCode string
}

// NewService wires the checkout boundary.
func NewService(
	log *logger.Logger,
	txRunner orders.TxRunner,
	repo orders.Repository,
	ledger inventory.Ledger,
	payments PaymentOpener,
	paymentWindow time.Duration,
	defaultWarehouseCode string,
) Service {
	return &service{
		log:                  log,
		txRunner:             txRunner,
		repo:                 repo,
		ledger:               ledger,
		payments:             payments,
		paymentWindow:        paymentWindow,
		defaultWarehouseCode: defaultWarehouseCode,
	}
}

func validateInput(input Input) error {
	if input.BuyerRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer reference is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range input.Items {
		if item.SKUID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item sku id is required")
		}
		if item.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item qty must be positive")
		}
		if item.UnitPriceCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "item unit price cannot be negative")
		}
	}
	return nil
}

func orderTotal(items []ItemInput) decimal.Decimal {
	cents := int64(0)
	for _, item := range items {
		cents += int64(item.Qty) * int64(item.UnitPriceCents)
	}
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

// Execute runs the full checkout inside one transaction. Any failure,
// whether a short stock row, the gateway rejecting the payment, or a
// constraint violation, rolls everything back; there is no partial order.
func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var result *Result
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		warehouse, err := repo.FindWarehouseByCode(ctx, s.defaultWarehouseCode)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeDependency, "default warehouse not configured")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve warehouse")
		}

		now := time.Now().UTC()
		dueAt := now.Add(s.paymentWindow)
		order := &models.Order{
			OrderNumber:     now.UnixNano(),
			BuyerRef:        input.BuyerRef,
			AmountUSD:       orderTotal(input.Items),
			Currency:        "USD",
			Status:          enums.OrderStatusPending,
			PaymentDueAt:    &dueAt,
			StatusUpdatedAt: now,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		ctx := s.log.WithOrderID(ctx, order.ID.String())

		items := make([]models.OrderItem, 0, len(input.Items))
		for _, item := range input.Items {
			items = append(items, models.OrderItem{
				OrderID:        order.ID,
				SKUID:          item.SKUID,
				Name:           item.Name,
				Qty:            item.Qty,
				UnitPriceCents: item.UnitPriceCents,
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		for _, item := range input.Items {
			if err := s.ledger.Reserve(ctx, tx, item.SKUID, warehouse.ID, item.Qty); err != nil {
				return err
			}
		}

		opened, err := s.payments.OpenPayment(ctx, gateway.OpenPaymentRequest{
			OrderRef:  order.ID.String(),
			AmountUSD: order.AmountUSD,
			PayerRef:  input.BuyerRef,
		})
		if err != nil {
			return err
		}

		expiresAt := opened.ExpiryTime
		if expiresAt == nil {
			expiresAt = &dueAt
		}
		payment := &models.Payment{
			OrderID:           order.ID,
			ExternalPaymentID: opened.ExternalPaymentID,
			PayAddress:        opened.PayAddress,
			PayAmount:         opened.PayAmount,
			PayCurrency:       opened.PayCurrency,
			PriceAmount:       order.AmountUSD,
			PriceCurrency:     "usd",
			Status:            enums.PaymentStatusPending,
			ExpiresAt:         expiresAt,
		}
		if _, err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		if err := repo.AppendTracking(ctx, &models.OrderTracking{
			OrderID:     order.ID,
			Status:      enums.OrderStatusPending,
			Description: "order created, awaiting payment",
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order tracking")
		}

		s.log.Info(s.log.WithPaymentID(ctx, payment.ExternalPaymentID), "checkout completed")
		result = &Result{Order: order, Payment: payment}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
