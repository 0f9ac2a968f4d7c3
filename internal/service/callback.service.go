package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"storefront/internal/domain"
	"storefront/internal/repo"
)

type ReconcileOutcome string

const (
	OutcomeApplied   ReconcileOutcome = "applied"
	OutcomeDuplicate ReconcileOutcome = "duplicate"
)

// CallbackReconciler applies processor callbacks to orders exactly once.
// It never calls the gateway.
type CallbackReconciler interface {
	Reconcile(ctx context.Context, ev domain.CallbackEvent) (ReconcileOutcome, error)
}

type callbackReconciler struct {
	orderRepo repo.OrderRepo
	log       *slog.Logger
}

func NewCallbackReconciler(orderRepo repo.OrderRepo, log *slog.Logger) CallbackReconciler {
	return &callbackReconciler{orderRepo: orderRepo, log: log}
}

// Reconcile returns domain.ErrOrderNotFound when no order carries the
// callback's checkout request id. A callback for an already settled order is
// reported as OutcomeDuplicate with a nil error.
func (r *callbackReconciler) Reconcile(ctx context.Context, ev domain.CallbackEvent) (ReconcileOutcome, error) {
	log := r.log.With("checkout_request_id", ev.CheckoutRequestID, "result_code", ev.ResultCode)

	order, err := r.orderRepo.FindByCheckoutRequestID(ctx, ev.CheckoutRequestID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		log.Error("callback for unknown checkout request")
		return "", err
	}
	if err != nil {
		return "", fmt.Errorf("find order: %w", err)
	}
	log = log.With("order_id", order.ID)

	t, err := order.SettlePayment(ev)
	if errors.Is(err, domain.ErrAlreadySettled) {
		log.Info("duplicate callback ignored", "payment_status", order.Payment)
		return OutcomeDuplicate, nil
	}
	if err != nil {
		log.Error("callback rejected by state machine", "payment_status", order.Payment, "error", err)
		return "", err
	}

	// The write is guarded on payment_status = pending, so of two concurrent
	// deliveries only one is applied.
	applied, err := r.orderRepo.ApplyPaymentTransition(ctx, t, ev.CheckoutRequestID)
	if err != nil {
		return "", fmt.Errorf("apply payment transition: %w", err)
	}
	if !applied {
		log.Info("duplicate callback lost the race")
		return OutcomeDuplicate, nil
	}

	log.Info("payment reconciled", "payment_status", t.To, "approved", t.ApproveOrder)
	return OutcomeApplied, nil
}
