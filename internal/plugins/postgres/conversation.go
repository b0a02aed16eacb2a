package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"chirp/internal/core/domain"

	"github.com/google/uuid"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

/*
	-- Conversations
	CREATE TABLE conversations (
		id              UUID PRIMARY KEY,
		participant_a   TEXT NOT NULL REFERENCES users(id),
		participant_b   TEXT NOT NULL REFERENCES users(id),
		status          TEXT NOT NULL DEFAULT 'pending',
		created_by      TEXT NOT NULL,
		last_message_at TIMESTAMPTZ,
		delivered_up_to JSONB NOT NULL DEFAULT '{}',
		read_up_to      JSONB NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (participant_a < participant_b),
		UNIQUE (participant_a, participant_b)
	);
*/

const conversationColumns = `id, participant_a, participant_b, status, created_by, last_message_at, delivered_up_to, read_up_to, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var lastMessageAt sql.NullTime
	var deliveredRaw, readRaw []byte
	err := row.Scan(
		&conv.ID, &conv.Participants[0], &conv.Participants[1],
		&conv.Status, &conv.CreatedBy, &lastMessageAt,
		&deliveredRaw, &readRaw, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}
	if err := json.Unmarshal(deliveredRaw, &conv.DeliveredUpTo); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(readRaw, &conv.ReadUpTo); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepo) GetConversationByID(ctx context.Context, convID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	conv, err := scanConversation(exec.QueryRowContext(ctx, query, convID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepo) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query :=
		`INSERT INTO conversations (id, participant_a, participant_b, status, created_by)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at, updated_at`

	exec := GetExecutor(ctx, r.db)
	return exec.QueryRowContext(ctx, query,
		conv.ID, conv.Participants[0], conv.Participants[1], conv.Status, conv.CreatedBy,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
}

func (r *ConversationRepo) FindBetween(ctx context.Context, pair [2]string, statuses []domain.ConversationStatus) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE participant_a = $1 AND participant_b = $2`
	args := []any{pair[0], pair[1]}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "$" + strconv.Itoa(len(args)+1)
			args = append(args, st)
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	exec := GetExecutor(ctx, r.db)
	conv, err := scanConversation(exec.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepo) ListForIdentity(ctx context.Context, identity string, status domain.ConversationStatus) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE (participant_a = $1 OR participant_b = $1)
          AND ($2 = '' OR status = $2)
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC`

	exec := GetExecutor(ctx, r.db)
	rows, err := exec.QueryContext(ctx, query, identity, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (r *ConversationRepo) UpdateStatus(ctx context.Context, convID uuid.UUID, status domain.ConversationStatus) error {
	query := `UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, convID, status)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepo) BumpLastMessageAt(ctx context.Context, convID uuid.UUID, at time.Time) error {
	query :=
		`UPDATE conversations
        SET last_message_at = GREATEST(COALESCE(last_message_at, 'epoch'::timestamptz), $2),
            updated_at = now()
        WHERE id = $1`
	exec := GetExecutor(ctx, r.db)
	_, err := exec.ExecContext(ctx, query, convID, at)
	return err
}

// AdvanceDeliveredCursor moves the cursor only forward. The guard lives in
// the WHERE clause so concurrent writers cannot regress it; zero rows updated
// means the stored cursor was already at or past the candidate.
func (r *ConversationRepo) AdvanceDeliveredCursor(ctx context.Context, convID uuid.UUID, identity string, at time.Time) (bool, error) {
	return r.advanceCursor(ctx, "delivered_up_to", convID, identity, at)
}

func (r *ConversationRepo) AdvanceReadCursor(ctx context.Context, convID uuid.UUID, identity string, at time.Time) (bool, error) {
	return r.advanceCursor(ctx, "read_up_to", convID, identity, at)
}

func (r *ConversationRepo) advanceCursor(ctx context.Context, column string, convID uuid.UUID, identity string, at time.Time) (bool, error) {
	// column is one of two compile-time constants, never caller input
	query :=
		`UPDATE conversations
        SET ` + column + ` = jsonb_set(` + column + `, ARRAY[$2], to_jsonb($3::timestamptz), true),
            updated_at = now()
        WHERE id = $1
          AND (NOT jsonb_exists(` + column + `, $2) OR (` + column + `->>$2)::timestamptz < $3::timestamptz)`

	exec := GetExecutor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query, convID, identity, at)
	if err != nil {
		return false, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}
