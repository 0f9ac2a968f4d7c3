package payment

import (
	"context"
	"errors"
	"fmt"
)

// Gateway submits a mobile-money charge and returns the processor's correlation id.
// Implementations never retry.
type Gateway interface {
	InitiateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error)
}

type ChargeRequest struct {
	PhoneNumber string
	Amount      int64
	Reference   string
	Description string
}

type ChargeResponse struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

var (
	ErrNotConfigured      = errors.New("payment gateway not configured")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidPhone       = errors.New("invalid payer phone number")
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInvalidReference   = errors.New("reference must not be empty")
)

// ChargeRejectedError carries the processor's structured rejection.
type ChargeRejectedError struct {
	HTTPStatus   int
	ResponseCode string
	Description  string
	Payload      []byte
}

func (e *ChargeRejectedError) Error() string {
	return fmt.Sprintf("charge rejected (http %d, code %q): %s", e.HTTPStatus, e.ResponseCode, e.Description)
}

func (r ChargeRequest) validate() (ChargeRequest, error) {
	phone, err := NormalizePhone(r.PhoneNumber)
	if err != nil {
		return r, err
	}
	if r.Amount <= 0 {
		return r, ErrInvalidAmount
	}
	if r.Reference == "" {
		return r, ErrInvalidReference
	}
	r.PhoneNumber = phone
	if r.Description == "" {
		r.Description = "Payment " + r.Reference
	}
	return r, nil
}
