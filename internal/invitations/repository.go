package invitations

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

// ErrAlreadyInOrganization is returned when the user joined an organization before the accept committed.
var ErrAlreadyInOrganization = errors.New("user already belongs to an organization")

// Repository reads and accepts organization invitations from the invitee's side.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an invitations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActiveForEmail returns unaccepted, unexpired invitations for email. Invitations of
// deleted organizations are skipped.
func (r *Repository) ListActiveForEmail(ctx context.Context, email string) ([]models.PendingInvitation, error) {
	const q = `SELECT i.id, i.role, i.expires_at, o.id, o.name, COALESCE(o.description,'')
		FROM organization_invitations i
		JOIN organizations o ON o.id = i.organization_id AND o.deleted_at IS NULL
		WHERE LOWER(i.email) = LOWER($1) AND NOT i.is_accepted AND i.expires_at > NOW()
		ORDER BY i.created_at DESC`
	rows, err := r.pool.Query(ctx, q, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PendingInvitation
	for rows.Next() {
		var p models.PendingInvitation
		var role string
		if err := rows.Scan(&p.ID, &role, &p.ExpiresAt, &p.Organization.ID, &p.Organization.Name, &p.Organization.Description); err != nil {
			return nil, err
		}
		p.Role = models.Role(role)
		list = append(list, p)
	}
	return list, rows.Err()
}

// GetPendingForEmail returns an unaccepted invitation addressed to email, expired or not.
func (r *Repository) GetPendingForEmail(ctx context.Context, id uuid.UUID, email string) (*models.Invitation, error) {
	const q = `SELECT id, organization_id, email, role, invited_by, is_accepted, expires_at, created_at
		FROM organization_invitations
		WHERE id = $1 AND LOWER(email) = LOWER($2) AND NOT is_accepted`
	var inv models.Invitation
	var role string
	err := r.pool.QueryRow(ctx, q, id, email).Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &role,
		&inv.InvitedBy, &inv.IsAccepted, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	inv.Role = models.Role(role)
	return &inv, nil
}

// Accept joins userID to the invitation's organization with role and marks the invitation
// accepted, atomically.
func (r *Repository) Accept(ctx context.Context, inv *models.Invitation, userID uuid.UUID, role models.Role) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE organization_invitations SET is_accepted = TRUE
			WHERE id = $1 AND NOT is_accepted`, inv.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		tag, err = tx.Exec(ctx, `UPDATE users SET organization_id = $2, role = $3, updated_at = NOW()
			WHERE id = $1 AND organization_id IS NULL`, userID, inv.OrganizationID, string(role))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyInOrganization
		}
		return nil
	})
}

// DeleteExpiredBefore removes unaccepted invitations that expired before cutoff.
func (r *Repository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM organization_invitations WHERE NOT is_accepted AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
