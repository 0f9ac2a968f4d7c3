package domain

import (
	"time"

	"github.com/google/uuid"
)

type SenderRole string

const (
	SenderCustomer SenderRole = "customer"
	SenderAgent    SenderRole = "agent"
	SenderSystem   SenderRole = "system"
)

// External reports whether the message came from outside the support team.
func (r SenderRole) External() bool {
	return r == SenderCustomer
}

type Conversation struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	AssignedAgentID *uuid.UUID
	CreatedAt       time.Time
}

type Agent struct {
	ID     uuid.UUID
	Name   string
	Active bool
}

// PushSubscription is keyed by Endpoint; a re-subscribe replaces the keys for that endpoint only.
type PushSubscription struct {
	Endpoint  string
	P256dh    string
	Auth      string
	AgentID   uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}
