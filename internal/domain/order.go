package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderApproved  OrderStatus = "approved"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnset   PaymentStatus = "unset"
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Order struct {
	ID          uuid.UUID
	OrderNumber string
	CustomerID  uuid.UUID
	PhoneNumber string
	Total       int64
	Status      OrderStatus
	Payment     PaymentStatus

	// Set once by checkout, unique across orders.
	CheckoutRequestID *string

	// Populated by reconciliation only.
	ReceiptNumber   *string
	TransactionDate *string
	PayerPhone      *string
	FailureReason   *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	UnitPrice int64
}

func (i OrderItem) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

const orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewOrderNumber returns a human-facing number of the form ORD-<unix millis>-<random>.
func NewOrderNumber(now time.Time) string {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
