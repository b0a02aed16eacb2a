package postgres

import (
	"context"
	"database/sql"

	"chirp/internal/core/domain"

	"github.com/google/uuid"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

/*
	-- Messages
	CREATE TABLE messages (
		id              UUID PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id),
		sender          TEXT NOT NULL,
		recipient       TEXT NOT NULL,
		body            TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX idx_messages_inbound ON messages (recipient, conversation_id, created_at DESC);
*/

func (r *MessageRepo) SaveMessage(ctx context.Context, msg *domain.Message) error {
	query :=
		`INSERT INTO messages (id, conversation_id, sender, recipient, body, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.From, msg.To, msg.Text, msg.CreatedAt)
	return err
}

func (r *MessageRepo) GetMessageByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg := &domain.Message{ID: id}
	query := `SELECT conversation_id, sender, recipient, body, created_at FROM messages WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	err := exec.QueryRowContext(ctx, query, id).
		Scan(&msg.ConversationID, &msg.From, &msg.To, &msg.Text, &msg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, convID uuid.UUID) ([]domain.Message, error) {
	query :=
		`SELECT id, conversation_id, sender, recipient, body, created_at
        FROM messages
        WHERE conversation_id = $1
        ORDER BY created_at ASC`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, convID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.From, &msg.To, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// LatestInboundPerConversation backs the reconnect catch-up path: one row per
// conversation, the newest message addressed to identity.
func (r *MessageRepo) LatestInboundPerConversation(ctx context.Context, identity string) ([]domain.InboundHead, error) {
	query :=
		`SELECT DISTINCT ON (conversation_id) conversation_id, id, sender, created_at
        FROM messages
        WHERE recipient = $1
        ORDER BY conversation_id, created_at DESC`
	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.InboundHead
	for rows.Next() {
		var head domain.InboundHead
		if err := rows.Scan(&head.ConversationID, &head.MessageID, &head.From, &head.At); err != nil {
			return nil, err
		}
		out = append(out, head)
	}
	return out, rows.Err()
}
