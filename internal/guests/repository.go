package guests

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/database"
)

// ErrAlreadyInvited is returned when the email is already on the event's guest list.
var ErrAlreadyInvited = errors.New("guest already invited")

const guestColumns = `id, event_id, guest_email, COALESCE(guest_name,''), invitation_token, status, responded_at, created_at`

// Repository handles event_invitations persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a guests repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanGuest(row pgx.Row) (*models.Guest, error) {
	var g models.Guest
	err := row.Scan(&g.ID, &g.EventID, &g.Email, &g.Name, &g.Token, &g.Status, &g.RespondedAt, &g.InvitedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// Create inserts g as pending and fills ID and InvitedAt.
func (r *Repository) Create(ctx context.Context, g *models.Guest) error {
	const q = `INSERT INTO event_invitations (event_id, guest_email, guest_name, invitation_token)
		VALUES ($1, $2, NULLIF($3,''), $4)
		RETURNING id, status, created_at`
	err := r.pool.QueryRow(ctx, q, g.EventID, g.Email, g.Name, g.Token).Scan(&g.ID, &g.Status, &g.InvitedAt)
	if database.IsUniqueViolation(err) {
		return ErrAlreadyInvited
	}
	return err
}

// ListByEvent returns an event's guests in invitation order.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Guest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+guestColumns+` FROM event_invitations WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Guest{}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *g)
	}
	return list, rows.Err()
}

// GetByToken returns the guest addressed by an RSVP token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Guest, error) {
	return scanGuest(r.pool.QueryRow(ctx, `SELECT `+guestColumns+` FROM event_invitations WHERE invitation_token = $1`, token))
}

// Respond records a pending guest's answer. It reports false when the guest had already answered.
func (r *Repository) Respond(ctx context.Context, id uuid.UUID, status string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE event_invitations SET status = $2, responded_at = $3
		WHERE id = $1 AND status = 'pending'`, id, status, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Counts tallies an event's guests by status.
func (r *Repository) Counts(ctx context.Context, eventID uuid.UUID) (models.GuestCounts, error) {
	const q = `SELECT
		COUNT(*) FILTER (WHERE status = 'pending'),
		COUNT(*) FILTER (WHERE status = 'accepted'),
		COUNT(*) FILTER (WHERE status = 'declined'),
		COUNT(*)
		FROM event_invitations WHERE event_id = $1`
	var c models.GuestCounts
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&c.Pending, &c.Accepted, &c.Declined, &c.Total)
	return c, err
}
