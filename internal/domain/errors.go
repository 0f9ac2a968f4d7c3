package domain

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrCorrelationConflict  = errors.New("checkout request id already assigned")
	ErrInvalidOrder         = errors.New("invalid order")

	// ErrAlreadySettled is expected: a duplicate callback for a paid or failed order.
	ErrAlreadySettled = errors.New("payment already settled")
)
