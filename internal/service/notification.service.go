package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/push"
	"storefront/internal/repo"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// Unassigned conversations notify at most this many active agents.
	maxFallbackAgents = 3
	maxParallelPushes = 16
)

type NotificationService interface {
	// Notify pushes a new-message alert to every endpoint of the conversation's
	// recipients. Delivery is best-effort; only recipient lookup errors are returned.
	Notify(ctx context.Context, conversationID uuid.UUID, sender domain.SenderRole, content string) (FanoutReport, error)
}

type FanoutReport struct {
	Recipients    int `json:"recipients"`
	Subscriptions int `json:"subscriptions"`
	Delivered     int `json:"delivered"`
	Pruned        int `json:"pruned"`
	Failed        int `json:"failed"`
}

type NotificationOptions struct {
	Icon  string
	Badge string
}

type notificationService struct {
	conversations repo.ConversationRepo
	subscriptions repo.SubscriptionRepo
	sender        push.Sender
	opts          NotificationOptions
	log           *slog.Logger
}

func NewNotificationService(
	conversations repo.ConversationRepo,
	subscriptions repo.SubscriptionRepo,
	sender push.Sender,
	opts NotificationOptions,
	log *slog.Logger,
) NotificationService {
	return &notificationService{
		conversations: conversations,
		subscriptions: subscriptions,
		sender:        sender,
		opts:          opts,
		log:           log,
	}
}

func (s *notificationService) Notify(ctx context.Context, conversationID uuid.UUID, sender domain.SenderRole, content string) (FanoutReport, error) {
	var report FanoutReport
	if !sender.External() {
		return report, nil
	}

	recipients, err := s.recipients(ctx, conversationID)
	if err != nil {
		return report, err
	}
	report.Recipients = len(recipients)
	if len(recipients) == 0 {
		return report, nil
	}

	subs, err := s.subscriptions.ListByAgents(ctx, recipients)
	if err != nil {
		return report, fmt.Errorf("list push subscriptions: %w", err)
	}
	report.Subscriptions = len(subs)
	if len(subs) == 0 {
		return report, nil
	}

	payload, err := push.NewChatMessage(conversationID, content, s.opts.Icon, s.opts.Badge).Encode()
	if err != nil {
		return report, err
	}

	var delivered, pruned, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(maxParallelPushes)
	for _, sub := range subs {
		g.Go(func() error {
			switch s.deliver(ctx, sub, payload) {
			case deliveryOK:
				delivered.Add(1)
			case deliveryPruned:
				pruned.Add(1)
			default:
				failed.Add(1)
			}
			// never fail the group: one endpoint must not affect the rest
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.Pruned = int(pruned.Load())
	report.Failed = int(failed.Load())
	s.log.Info("push fanout finished",
		"conversation_id", conversationID,
		"recipients", report.Recipients,
		"subscriptions", report.Subscriptions,
		"delivered", report.Delivered,
		"pruned", report.Pruned,
		"failed", report.Failed,
	)
	return report, nil
}

func (s *notificationService) recipients(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	conv, err := s.conversations.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.AssignedAgentID != nil {
		return []uuid.UUID{*conv.AssignedAgentID}, nil
	}

	agents, err := s.conversations.ListActiveAgents(ctx, maxFallbackAgents)
	if err != nil {
		return nil, fmt.Errorf("list active agents: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

type deliveryResult int

const (
	deliveryOK deliveryResult = iota
	deliveryPruned
	deliveryFailed
)

func (s *notificationService) deliver(ctx context.Context, sub domain.PushSubscription, payload []byte) deliveryResult {
	err := s.sender.Send(ctx, sub, payload)
	if err == nil {
		return deliveryOK
	}

	log := s.log.With("endpoint", sub.Endpoint, "agent_id", sub.AgentID)
	if !errors.Is(err, push.ErrSubscriptionGone) {
		log.Warn("push delivery failed", "error", err)
		return deliveryFailed
	}

	if delErr := s.subscriptions.DeleteByEndpoint(ctx, sub.Endpoint); delErr != nil {
		// the row stays until the next gone response
		log.Warn("failed to prune stale push subscription", "error", delErr)
		return deliveryFailed
	}
	log.Info("pruned stale push subscription")
	return deliveryPruned
}
