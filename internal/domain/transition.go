package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnset:   {PaymentPending},
	PaymentPending: {PaymentPaid, PaymentFailed},
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:  {OrderApproved, OrderCancelled},
	OrderApproved: {OrderShipped, OrderCancelled},
	OrderShipped:  {OrderDelivered, OrderCancelled},
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseOrderStatus(v string) (OrderStatus, error) {
	switch s := OrderStatus(strings.ToLower(strings.TrimSpace(v))); s {
	case OrderPending, OrderApproved, OrderShipped, OrderDelivered, OrderCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

func ParsePaymentStatus(v string) (PaymentStatus, error) {
	switch s := PaymentStatus(v); s {
	case PaymentUnset, PaymentPending, PaymentPaid, PaymentFailed:
		return s, nil
	}
	return "", fmt.Errorf("%w: payment status %q", ErrInvalidStatus, v)
}

// PaymentTransition describes a conditional write against an order's payment
// fields. Stores must apply it only while the order still has payment status From.
type PaymentTransition struct {
	OrderID      uuid.UUID
	From         PaymentStatus
	To           PaymentStatus
	ApproveOrder bool

	ReceiptNumber   *string
	TransactionDate *string
	PayerPhone      *string
	FailureReason   *string
}

// BeginPayment validates unset -> pending for a freshly submitted charge.
func (o *Order) BeginPayment(checkoutRequestID string) (PaymentTransition, error) {
	if checkoutRequestID == "" {
		return PaymentTransition{}, fmt.Errorf("%w: empty checkout request id", ErrInvalidTransition)
	}
	if o.CheckoutRequestID != nil || !o.Payment.CanTransitionTo(PaymentPending) {
		return PaymentTransition{}, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.Payment, PaymentPending)
	}
	return PaymentTransition{OrderID: o.ID, From: o.Payment, To: PaymentPending}, nil
}

// SettlePayment maps a processor outcome onto pending -> paid or pending -> failed.
// An order that is already terminal yields ErrAlreadySettled.
func (o *Order) SettlePayment(ev CallbackEvent) (PaymentTransition, error) {
	if o.Payment.Terminal() {
		return PaymentTransition{}, ErrAlreadySettled
	}

	t := PaymentTransition{OrderID: o.ID, From: o.Payment}
	if ev.Succeeded() {
		t.To = PaymentPaid
		t.ApproveOrder = o.Status.CanTransitionTo(OrderApproved)
		md := ev.Metadata
		if md == nil {
			md = &CallbackMetadata{}
		}
		t.ReceiptNumber = &md.ReceiptNumber
		t.TransactionDate = &md.TransactionDate
		t.PayerPhone = &md.PhoneNumber
	} else {
		t.To = PaymentFailed
		reason := ev.ResultDesc
		t.FailureReason = &reason
	}

	if !o.Payment.CanTransitionTo(t.To) {
		return PaymentTransition{}, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.Payment, t.To)
	}
	return t, nil
}

// Apply mutates o in memory. Callers are expected to have checked From.
func (t PaymentTransition) Apply(o *Order, checkoutRequestID string) {
	o.Payment = t.To
	if t.To == PaymentPending {
		id := checkoutRequestID
		o.CheckoutRequestID = &id
	}
	if t.ApproveOrder && o.Status == OrderPending {
		o.Status = OrderApproved
	}
	if t.ReceiptNumber != nil {
		o.ReceiptNumber = t.ReceiptNumber
		o.TransactionDate = t.TransactionDate
		o.PayerPhone = t.PayerPhone
	}
	if t.FailureReason != nil {
		o.FailureReason = t.FailureReason
	}
}

// ChangeStatus validates an administrative order status change.
func (o *Order) ChangeStatus(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	return nil
}
