package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"storefront/internal/domain"
	"storefront/internal/repo"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, []domain.OrderItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type CreateOrderInput struct {
	CustomerID  uuid.UUID
	PhoneNumber string
	Items       []ItemInput
}

type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice int64
}

type orderService struct {
	orderRepo repo.OrderRepo
	log       *slog.Logger
	now       func() time.Time
}

func NewOrderService(orderRepo repo.OrderRepo, log *slog.Logger) OrderService {
	return &orderService{
		orderRepo: orderRepo,
		log:       log,
		now:       time.Now,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", domain.ErrInvalidOrder)
	}
	if strings.TrimSpace(in.PhoneNumber) == "" {
		return nil, fmt.Errorf("%w: phone number required", domain.ErrInvalidOrder)
	}

	now := s.now()
	order := &domain.Order{
		ID:          uuid.New(),
		OrderNumber: domain.NewOrderNumber(now),
		CustomerID:  in.CustomerID,
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Status:      domain.OrderPending,
		Payment:     domain.PaymentUnset,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return nil, fmt.Errorf("%w: item %s has quantity %d, price %d", domain.ErrInvalidOrder, it.ProductID, it.Quantity, it.UnitPrice)
		}
		item := domain.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
		order.Total += item.Subtotal()
		items = append(items, item)
	}
	if order.Total <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", domain.ErrInvalidOrder)
	}

	if err := s.orderRepo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	if err := s.orderRepo.CreateOrderItems(ctx, items); err != nil {
		// compensate: no header may survive without its lines
		if delErr := s.orderRepo.DeleteOrder(ctx, order.ID); delErr != nil {
			s.log.Error("failed to delete order header after item failure",
				"order_id", order.ID, "error", delErr)
		}
		return nil, fmt.Errorf("create order items: %w", err)
	}

	s.log.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "total", order.Total)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, []domain.OrderItem, error) {
	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.orderRepo.ListItems(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	order, err := s.orderRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.ChangeStatus(status); err != nil {
		return nil, err
	}

	applied, err := s.orderRepo.UpdateOrderStatus(ctx, id, order.Status, status)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("%w: order %s changed concurrently", domain.ErrInvalidTransition, id)
	}

	s.log.Info("order status changed", "order_id", id, "from", order.Status, "to", status)
	return s.orderRepo.FindById(ctx, id)
}

func (s *orderService) CancelOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.UpdateStatus(ctx, id, domain.OrderCancelled)
	if errors.Is(err, domain.ErrInvalidTransition) {
		return nil, fmt.Errorf("order cannot be cancelled: %w", err)
	}
	return order, err
}
