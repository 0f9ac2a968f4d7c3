package service

import (
	"context"
	"fmt"
	"log/slog"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/payment"
	"storefront/internal/repo"

	"github.com/google/uuid"
)

type CheckoutService interface {
	// StartCheckout submits exactly one charge for an order whose payment status is unset.
	StartCheckout(ctx context.Context, orderID uuid.UUID) (CheckoutResult, error)
}

type CheckoutResult struct {
	OrderID           uuid.UUID
	CheckoutRequestID string
	CustomerMessage   string
}

type checkoutService struct {
	orderRepo  repo.OrderRepo
	paymentGtw payment.Gateway
	log        *slog.Logger
}

func NewCheckoutService(orderRepo repo.OrderRepo, paymentGtw payment.Gateway, log *slog.Logger) CheckoutService {
	return &checkoutService{
		orderRepo:  orderRepo,
		paymentGtw: paymentGtw,
		log:        log,
	}
}

func (s *checkoutService) StartCheckout(ctx context.Context, orderID uuid.UUID) (CheckoutResult, error) {
	order, err := s.orderRepo.FindById(ctx, orderID)
	if err != nil {
		return CheckoutResult{}, err
	}

	if order.Payment != domain.PaymentUnset || order.CheckoutRequestID != nil {
		return CheckoutResult{}, fmt.Errorf("%w: payment already %s", domain.ErrInvalidTransition, order.Payment)
	}
	if order.Status.Terminal() {
		return CheckoutResult{}, fmt.Errorf("%w: order is %s", domain.ErrInvalidTransition, order.Status)
	}

	resp, err := s.paymentGtw.InitiateCharge(ctx, payment.ChargeRequest{
		PhoneNumber: order.PhoneNumber,
		Amount:      order.Total,
		Reference:   order.OrderNumber,
		Description: "Order " + order.OrderNumber,
	})
	if err != nil {
		s.log.Warn("charge submission failed", "order_id", order.ID, "error", err)
		return CheckoutResult{}, err
	}

	t, err := order.BeginPayment(resp.CheckoutRequestID)
	if err != nil {
		return CheckoutResult{}, err
	}
	applied, err := s.orderRepo.ApplyPaymentTransition(ctx, t, resp.CheckoutRequestID)
	if err != nil {
		s.log.Error("charge submitted but correlation id not stored",
			"order_id", order.ID, "checkout_request_id", resp.CheckoutRequestID, "error", err)
		return CheckoutResult{}, err
	}
	if !applied {
		s.log.Error("charge submitted for an order that left the unset state",
			"order_id", order.ID, "checkout_request_id", resp.CheckoutRequestID)
		return CheckoutResult{}, fmt.Errorf("%w: order %s checked out concurrently", domain.ErrInvalidTransition, order.ID)
	}

	s.log.Info("checkout started", "order_id", order.ID, "checkout_request_id", resp.CheckoutRequestID)
	return CheckoutResult{
		OrderID:           order.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}
