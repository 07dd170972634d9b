package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/auth"
	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/database"
)

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Search string
	Role   models.Role
	Limit  int
	Offset int
}

// Stats summarizes platform usage.
type Stats struct {
	UsersByRole              map[models.Role]int `json:"users_by_role"`
	TotalUsers               int                 `json:"total_users"`
	ActiveOrganizations      int                 `json:"active_organizations"`
	DeletedOrganizations     int                 `json:"deleted_organizations"`
	ActiveEvents             int                 `json:"active_events"`
	PublicEvents             int                 `json:"public_events"`
	PendingOrganizerRequests int                 `json:"pending_organizer_requests"`
	PendingInvitations       int                 `json:"pending_invitations"`
	GuestInvitations         int                 `json:"guest_invitations"`
}

// Repository runs the administrative queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an admin repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns one page of users, newest first, and the number of matches.
func (r *Repository) ListUsers(ctx context.Context, f UserFilter) ([]models.User, int, error) {
	var conds []string
	var args []interface{}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, database.ContainsPattern(s))
		conds = append(conds, fmt.Sprintf(`(email ILIKE $%[1]d ESCAPE '\' OR first_name ILIKE $%[1]d ESCAPE '\'`+
			` OR last_name ILIKE $%[1]d ESCAPE '\')`, len(args)))
	}
	if f.Role != "" {
		args = append(args, string(f.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + auth.UserColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	list := []models.User{}
	for rows.Next() {
		u, err := auth.ScanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *u)
	}
	return list, total, rows.Err()
}

// SetRole assigns role and organization and clears any pending organizer request.
func (r *Repository) SetRole(ctx context.Context, id uuid.UUID, role models.Role, orgID *uuid.UUID) (*models.User, error) {
	const q = `UPDATE users SET role = $2, organization_id = $3, pending_organizer_approval = FALSE, updated_at = NOW()
		WHERE id = $1 RETURNING ` + auth.UserColumns
	return auth.ScanUser(r.pool.QueryRow(ctx, q, id, string(role), orgID))
}

// DeleteUser removes a user. Events they created stay with their organization.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Stats gathers the dashboard counters.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{UsersByRole: map[models.Role]int{
		models.RoleAdmin: 0, models.RoleOrganizer: 0, models.RoleTeamMember: 0, models.RoleGuest: 0,
	}}
	rows, err := r.pool.Query(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			rows.Close()
			return nil, err
		}
		s.UsersByRole[models.Role(role)] = n
		s.TotalUsers += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const q = `SELECT
		(SELECT COUNT(*) FROM organizations WHERE deleted_at IS NULL),
		(SELECT COUNT(*) FROM organizations WHERE deleted_at IS NOT NULL),
		(SELECT COUNT(*) FROM events WHERE deleted_at IS NULL),
		(SELECT COUNT(*) FROM events WHERE deleted_at IS NULL AND is_public),
		(SELECT COUNT(*) FROM users WHERE pending_organizer_approval),
		(SELECT COUNT(*) FROM organization_invitations WHERE NOT is_accepted AND expires_at > NOW()),
		(SELECT COUNT(*) FROM event_invitations)`
	err = r.pool.QueryRow(ctx, q).Scan(&s.ActiveOrganizations, &s.DeletedOrganizations, &s.ActiveEvents,
		&s.PublicEvents, &s.PendingOrganizerRequests, &s.PendingInvitations, &s.GuestInvitations)
	if err != nil {
		return nil, fmt.Errorf("count stats: %w", err)
	}
	return s, nil
}
