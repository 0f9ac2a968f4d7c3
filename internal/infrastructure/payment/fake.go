package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"storefront/internal/domain"
	"sync"
	"sync/atomic"
	"time"
)

// FakeGateway accepts or rejects charges in process and remembers each accepted
// one so its outcome callback can be produced later.
type FakeGateway struct {
	mu      sync.RWMutex
	charges map[string]ChargeRequest
	seq     atomic.Int64

	// RejectRate is the probability in [0,1) that a charge is rejected.
	RejectRate float64
	// FailRate is the probability that an accepted charge later reports failure.
	FailRate float64
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{charges: make(map[string]ChargeRequest)}
}

func (g *FakeGateway) InitiateCharge(ctx context.Context, req ChargeRequest) (ChargeResponse, error) {
	req, err := req.validate()
	if err != nil {
		return ChargeResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return ChargeResponse{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if g.RejectRate > 0 && rand.Float64() < g.RejectRate {
		return ChargeResponse{}, &ChargeRejectedError{
			HTTPStatus:   400,
			ResponseCode: "400.002.02",
			Description:  "Bad Request - Invalid PhoneNumber",
		}
	}

	n := g.seq.Add(1)
	id := fmt.Sprintf("ws_CO_%s_%d", time.Now().Format("02012006150405"), n)

	g.mu.Lock()
	g.charges[id] = req
	g.mu.Unlock()

	return ChargeResponse{
		MerchantRequestID: fmt.Sprintf("fake-%d", n),
		CheckoutRequestID: id,
		CustomerMessage:   "Success. Request accepted for processing",
	}, nil
}

// Outcome builds the callback the processor would post for an accepted charge.
func (g *FakeGateway) Outcome(checkoutRequestID string) (domain.CallbackEvent, bool) {
	g.mu.RLock()
	req, ok := g.charges[checkoutRequestID]
	g.mu.RUnlock()
	if !ok {
		return domain.CallbackEvent{}, false
	}

	ev := domain.CallbackEvent{CheckoutRequestID: checkoutRequestID}
	if g.FailRate > 0 && rand.Float64() < g.FailRate {
		ev.ResultCode = 1032
		ev.ResultDesc = "Request cancelled by user"
		return ev, true
	}
	ev.ResultDesc = "The service request is processed successfully."
	ev.Metadata = &domain.CallbackMetadata{
		Amount:          fmt.Sprint(req.Amount),
		ReceiptNumber:   fmt.Sprintf("FAKE%06d", rand.IntN(1_000_000)),
		TransactionDate: time.Now().In(eat).Format(stkTimestamp),
		PhoneNumber:     req.PhoneNumber,
	}
	return ev, true
}
