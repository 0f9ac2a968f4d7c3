package repo

import (
	"context"
	"database/sql"
	"errors"
	"storefront/internal/domain"

	"github.com/google/uuid"
)

type ConversationRepo interface {
	FindConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	// ListActiveAgents returns at most limit agents with the active flag set.
	ListActiveAgents(ctx context.Context, limit int) ([]domain.Agent, error)
}

type conversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) FindConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var c domain.Conversation
	var assigned uuid.NullUUID
	err := r.db.QueryRowContext(ctx,
		"SELECT id, customer_id, assigned_agent_id, created_at FROM conversations WHERE id = $1", id,
	).Scan(&c.ID, &c.CustomerID, &assigned, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if assigned.Valid {
		c.AssignedAgentID = &assigned.UUID
	}
	return &c, nil
}

func (r *conversationRepo) ListActiveAgents(ctx context.Context, limit int) ([]domain.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, active FROM agents WHERE active LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Active); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}
