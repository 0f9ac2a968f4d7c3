// Package memory holds in-process implementations of the repo interfaces.
// Conditional writes are checked and applied under a single lock, matching the
// WHERE-guarded updates of the Postgres repos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"storefront/internal/domain"
	"storefront/internal/repo"
	"sync"
	"time"

	"github.com/google/uuid"
)

type OrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]domain.Order
	items  map[uuid.UUID][]domain.OrderItem

	// FailItems makes CreateOrderItems fail, for exercising compensation.
	FailItems error
}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{
		orders: make(map[uuid.UUID]domain.Order),
		items:  make(map[uuid.UUID][]domain.OrderItem),
	}
}

func (r *OrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	for _, o := range r.orders {
		if o.OrderNumber == order.OrderNumber {
			return fmt.Errorf("order number %s already exists", order.OrderNumber)
		}
	}
	r.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (r *OrderRepo) CreateOrderItems(ctx context.Context, items []domain.OrderItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailItems != nil {
		return r.FailItems
	}
	for _, item := range items {
		if _, ok := r.orders[item.OrderID]; !ok {
			return fmt.Errorf("order %s does not exist", item.OrderID)
		}
	}
	for _, item := range items {
		r.items[item.OrderID] = append(r.items[item.OrderID], item)
	}
	return nil
}

func (r *OrderRepo) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.orders, id)
	delete(r.items, id)
	return nil
}

func (r *OrderRepo) FindById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (r *OrderRepo) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.CheckoutRequestID != nil && *o.CheckoutRequestID == checkoutRequestID {
			out := cloneOrder(o)
			return &out, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (r *OrderRepo) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.OrderItem(nil), r.items[orderID]...), nil
}

// Orders returns a snapshot of every stored order.
func (r *OrderRepo) Orders() []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *OrderRepo) ApplyPaymentTransition(ctx context.Context, t domain.PaymentTransition, checkoutRequestID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[t.OrderID]
	if !ok || o.Payment != t.From {
		return false, nil
	}
	if t.To == domain.PaymentPending {
		if o.CheckoutRequestID != nil {
			return false, nil
		}
		for id, other := range r.orders {
			if id != o.ID && other.CheckoutRequestID != nil && *other.CheckoutRequestID == checkoutRequestID {
				return false, fmt.Errorf("%w: %s", domain.ErrCorrelationConflict, checkoutRequestID)
			}
		}
	}

	t.Apply(&o, checkoutRequestID)
	o.UpdatedAt = time.Now()
	r.orders[o.ID] = cloneOrder(o)
	return true, nil
}

func (r *OrderRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	r.orders[id] = o
	return true, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.CheckoutRequestID = cloneString(o.CheckoutRequestID)
	o.ReceiptNumber = cloneString(o.ReceiptNumber)
	o.TransactionDate = cloneString(o.TransactionDate)
	o.PayerPhone = cloneString(o.PayerPhone)
	o.FailureReason = cloneString(o.FailureReason)
	return o
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

type ConversationRepo struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]domain.Conversation
	agents        []domain.Agent
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{conversations: make(map[uuid.UUID]domain.Conversation)}
}

func (r *ConversationRepo) AddConversation(c domain.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[c.ID] = c
}

func (r *ConversationRepo) AddAgent(a domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, a)
}

func (r *ConversationRepo) FindConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return &c, nil
}

func (r *ConversationRepo) ListActiveAgents(ctx context.Context, limit int) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Agent
	for _, a := range r.agents {
		if len(out) == limit {
			break
		}
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

type SubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[string]domain.PushSubscription

	// FailDelete makes DeleteByEndpoint fail.
	FailDelete error
}

func NewSubscriptionRepo() *SubscriptionRepo {
	return &SubscriptionRepo{subs: make(map[string]domain.PushSubscription)}
}

func (r *SubscriptionRepo) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	s := *sub
	if existing, ok := r.subs[s.Endpoint]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.subs[s.Endpoint] = s
	return nil
}

func (r *SubscriptionRepo) ListByAgents(ctx context.Context, agentIDs []uuid.UUID) ([]domain.PushSubscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := make(map[uuid.UUID]bool, len(agentIDs))
	for _, id := range agentIDs {
		want[id] = true
	}
	var out []domain.PushSubscription
	for _, s := range r.subs {
		if want[s.AgentID] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func (r *SubscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete != nil {
		return r.FailDelete
	}
	delete(r.subs, endpoint)
	return nil
}

// Endpoints lists every stored endpoint in sorted order.
func (r *SubscriptionRepo) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs))
	for e := range r.subs {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

var (
	_ repo.OrderRepo        = (*OrderRepo)(nil)
	_ repo.ConversationRepo = (*ConversationRepo)(nil)
	_ repo.SubscriptionRepo = (*SubscriptionRepo)(nil)
)
