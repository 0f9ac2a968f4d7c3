package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/push"
	"storefront/internal/repo/memory"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fanoutFixture struct {
	conversations *memory.ConversationRepo
	subs          *memory.SubscriptionRepo
	sender        *stubSender
	svc           NotificationService
}

func newFanoutFixture() *fanoutFixture {
	f := &fanoutFixture{
		conversations: memory.NewConversationRepo(),
		subs:          memory.NewSubscriptionRepo(),
		sender:        &stubSender{fail: map[string]error{}},
	}
	f.svc = NewNotificationService(f.conversations, f.subs, f.sender,
		NotificationOptions{Icon: "/icon.png", Badge: "/badge.png"}, discardLogger())
	return f
}

func (f *fanoutFixture) addAgent(t *testing.T, active bool, endpoints ...string) uuid.UUID {
	id := uuid.New()
	f.conversations.AddAgent(domain.Agent{ID: id, Name: "agent", Active: active})
	for _, e := range endpoints {
		require.NoError(t, f.subs.Upsert(context.Background(), &domain.PushSubscription{
			Endpoint: e, P256dh: "p", Auth: "a", AgentID: id,
		}))
	}
	return id
}

func goneErr(endpoint string) error {
	return fmt.Errorf("%w: %s", push.ErrSubscriptionGone, endpoint)
}

// Scenario E
func TestNotifyPrunesGoneEndpoint(t *testing.T) {
	f := newFanoutFixture()
	f.addAgent(t, true, "https://push.example/a")
	f.addAgent(t, true, "https://push.example/b")
	f.addAgent(t, true, "https://push.example/c")
	f.sender.fail["https://push.example/b"] = goneErr("b")

	conv := domain.Conversation{ID: uuid.New()}
	f.conversations.AddConversation(conv)

	report, err := f.svc.Notify(context.Background(), conv.ID, domain.SenderCustomer, "Hello, is my order shipped?")
	require.NoError(t, err)
	assert.Equal(t, FanoutReport{Recipients: 3, Subscriptions: 3, Delivered: 2, Pruned: 1}, report)
	assert.Equal(t, []string{"https://push.example/a", "https://push.example/c"}, f.subs.Endpoints())
}

func TestNotifyIsolation(t *testing.T) {
	f := newFanoutFixture()
	var endpoints []string
	for i := 0; i < 20; i++ {
		endpoints = append(endpoints, fmt.Sprintf("https://push.example/%02d", i))
	}
	agent := f.addAgent(t, true, endpoints...)

	var kept []string
	for i, e := range endpoints {
		switch i % 4 {
		case 0:
			f.sender.fail[e] = goneErr(e)
		case 1:
			f.sender.fail[e] = errors.New("connection reset")
			kept = append(kept, e)
		default:
			kept = append(kept, e)
		}
	}

	conv := domain.Conversation{ID: uuid.New(), AssignedAgentID: &agent}
	f.conversations.AddConversation(conv)

	report, err := f.svc.Notify(context.Background(), conv.ID, domain.SenderCustomer, "hi")
	require.NoError(t, err)
	assert.Equal(t, 20, f.sender.count())
	assert.Equal(t, 5, report.Pruned)
	assert.Equal(t, 5, report.Failed)
	assert.Equal(t, 10, report.Delivered)
	assert.Equal(t, kept, f.subs.Endpoints())
}

func TestNotifyAssignedAgentOnly(t *testing.T) {
	f := newFanoutFixture()
	assigned := f.addAgent(t, true, "https://push.example/assigned")
	f.addAgent(t, true, "https://push.example/other")

	conv := domain.Conversation{ID: uuid.New(), AssignedAgentID: &assigned}
	f.conversations.AddConversation(conv)

	report, err := f.svc.Notify(context.Background(), conv.ID, domain.SenderCustomer, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recipients)
	assert.Equal(t, []string{"https://push.example/assigned"}, f.sender.sent)

	var msg push.Message
	require.NoError(t, json.Unmarshal(f.sender.payloads[0], &msg))
	assert.Equal(t, "hi", msg.Body)
	assert.Equal(t, "chat-"+conv.ID.String(), msg.Tag)
	assert.Equal(t, "/icon.png", msg.Icon)
	assert.Equal(t, "/badge.png", msg.Badge)
	assert.Contains(t, msg.Data.URL, conv.ID.String())
}

func TestNotifyFallbackLimitsToThreeActiveAgents(t *testing.T) {
	f := newFanoutFixture()
	f.addAgent(t, false, "https://push.example/inactive")
	for i := 0; i < 5; i++ {
		f.addAgent(t, true, fmt.Sprintf("https://push.example/%d", i))
	}
	conv := domain.Conversation{ID: uuid.New()}
	f.conversations.AddConversation(conv)

	report, err := f.svc.Notify(context.Background(), conv.ID, domain.SenderCustomer, "hi")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Recipients)
	assert.Equal(t, 3, f.sender.count())
	assert.NotContains(t, f.sender.sent, "https://push.example/inactive")
}

func TestNotifyNoOps(t *testing.T) {
	f := newFanoutFixture()
	f.addAgent(t, true, "https://push.example/a")
	conv := domain.Conversation{ID: uuid.New()}
	f.conversations.AddConversation(conv)
	ctx := context.Background()

	for _, role := range []domain.SenderRole{domain.SenderAgent, domain.SenderSystem, "unknown"} {
		report, err := f.svc.Notify(ctx, conv.ID, role, "internal note")
		require.NoError(t, err)
		assert.Zero(t, report)
	}
	assert.Equal(t, 0, f.sender.count())

	// no active agents
	empty := newFanoutFixture()
	empty.addAgent(t, false, "https://push.example/off")
	empty.conversations.AddConversation(conv)
	report, err := empty.svc.Notify(ctx, conv.ID, domain.SenderCustomer, "hi")
	require.NoError(t, err)
	assert.Equal(t, FanoutReport{}, report)

	// agent with no subscriptions
	bare := newFanoutFixture()
	bare.addAgent(t, true)
	bare.conversations.AddConversation(conv)
	report, err = bare.svc.Notify(ctx, conv.ID, domain.SenderCustomer, "hi")
	require.NoError(t, err)
	assert.Equal(t, FanoutReport{Recipients: 1}, report)
	assert.Equal(t, 0, bare.sender.count())
}

func TestNotifyUnknownConversation(t *testing.T) {
	f := newFanoutFixture()
	_, err := f.svc.Notify(context.Background(), uuid.New(), domain.SenderCustomer, "hi")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestNotifyPruneFailureKeepsSubscription(t *testing.T) {
	f := newFanoutFixture()
	agent := f.addAgent(t, true, "https://push.example/stale")
	f.sender.fail["https://push.example/stale"] = goneErr("stale")
	f.subs.FailDelete = errors.New("db down")

	conv := domain.Conversation{ID: uuid.New(), AssignedAgentID: &agent}
	f.conversations.AddConversation(conv)

	report, err := f.svc.Notify(context.Background(), conv.ID, domain.SenderCustomer, "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, []string{"https://push.example/stale"}, f.subs.Endpoints())
}
