package repo

import (
	"context"
	"database/sql"
	"fmt"
	"storefront/internal/domain"

	"github.com/google/uuid"
)

type SubscriptionRepo interface {
	// Upsert keys on endpoint: keys and owner are replaced for that endpoint only.
	Upsert(ctx context.Context, sub *domain.PushSubscription) error
	ListByAgents(ctx context.Context, agentIDs []uuid.UUID) ([]domain.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type subscriptionRepo struct {
	db *sql.DB
}

func NewSubscriptionRepo(db *sql.DB) SubscriptionRepo {
	return &subscriptionRepo{db: db}
}

func (r *subscriptionRepo) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (endpoint, p256dh, auth, agent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (endpoint) DO UPDATE
		SET p256dh = EXCLUDED.p256dh,
		    auth = EXCLUDED.auth,
		    agent_id = EXCLUDED.agent_id,
		    updated_at = now()`,
		sub.Endpoint, sub.P256dh, sub.Auth, sub.AgentID,
	)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) ListByAgents(ctx context.Context, agentIDs []uuid.UUID) ([]domain.PushSubscription, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT endpoint, p256dh, auth, agent_id, created_at, updated_at
		FROM push_subscriptions
		WHERE agent_id = ANY($1)`, agentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.PushSubscription
	for rows.Next() {
		var s domain.PushSubscription
		if err := rows.Scan(&s.Endpoint, &s.P256dh, &s.Auth, &s.AgentID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *subscriptionRepo) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE endpoint = $1", endpoint)
	return err
}
