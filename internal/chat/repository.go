package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/models"
)

// Repository stores chat exchanges.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveExchange stores a user message and the assistant reply together.
func (r *Repository) SaveExchange(ctx context.Context, userID uuid.UUID, question, answer string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO chat_messages (user_id, role, content, created_at) VALUES ($1, $2, $3, clock_timestamp())`
		if _, err := tx.Exec(ctx, q, userID, models.ChatRoleUser, question); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, q, userID, models.ChatRoleAssistant, answer)
		return err
	})
}

// Recent returns the user's latest limit messages, oldest first.
func (r *Repository) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	const q = `SELECT id, user_id, role, content, created_at FROM (
			SELECT id, user_id, role, content, created_at FROM chat_messages
			WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
