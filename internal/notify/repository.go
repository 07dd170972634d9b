package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const logColumns = `id, email_type, recipient_email, subject, status, reference_id, sent_at, error_message, created_at`

// Create inserts a queued log row and fills ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, l *models.EmailLog) error {
	if l.Status == "" {
		l.Status = models.EmailLogStatusQueued
	}
	const q = `INSERT INTO email_logs (email_type, recipient_email, subject, status, reference_id)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, l.EmailType, l.RecipientEmail, l.Subject, l.Status, l.ReferenceID).
		Scan(&l.ID, &l.CreatedAt)
}

// MarkSent records successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_logs SET status = 'sent', sent_at = $2, error_message = NULL WHERE id = $1`, id, at)
	return err
}

// MarkFailed records a delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_logs SET status = 'failed', error_message = $2 WHERE id = $1`, id, reason)
	return err
}

// LogFilter narrows List. Zero values match everything.
type LogFilter struct {
	Status      string
	EmailType   string
	ReferenceID *uuid.UUID
	Limit       int
}

// List returns email logs newest first.
func (r *Repository) List(ctx context.Context, f LogFilter) ([]models.EmailLog, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + logColumns + ` FROM email_logs
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR email_type = $2)
		  AND ($3::uuid IS NULL OR reference_id = $3)
		ORDER BY created_at DESC
		LIMIT $4`
	rows, err := r.pool.Query(ctx, q, f.Status, f.EmailType, f.ReferenceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status,
			&el.ReferenceID, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, el)
	}
	return list, rows.Err()
}
