package service

import (
	"context"
	"io"
	"log/slog"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/payment"
	"sync"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubGateway struct {
	mu       sync.Mutex
	resp     payment.ChargeResponse
	err      error
	requests []payment.ChargeRequest
}

func (g *stubGateway) InitiateCharge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.resp, g.err
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type stubSender struct {
	mu       sync.Mutex
	fail     map[string]error
	sent     []string
	payloads [][]byte
}

func (s *stubSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sub.Endpoint)
	s.payloads = append(s.payloads, payload)
	return s.fail[sub.Endpoint]
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newItem(qty int, price int64) ItemInput {
	return ItemInput{ProductID: uuid.New(), Quantity: qty, UnitPrice: price}
}
