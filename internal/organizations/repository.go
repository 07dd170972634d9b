package organizations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/database"
)

var (
	// ErrNameTaken is returned when another organization already uses the name.
	ErrNameTaken = errors.New("organization name already exists")
	// ErrActiveInvitation is returned when the email already holds a live invitation.
	ErrActiveInvitation = errors.New("an active invitation already exists for this user")
	// ErrAlreadyMember is returned when the user joined an organization concurrently.
	ErrAlreadyMember = errors.New("user already belongs to an organization")
	// ErrNotMember is returned when the user is not (or no longer) in the organization.
	ErrNotMember = errors.New("user is not a member of this organization")
)

// List filters.
const (
	FilterAll     = "all"
	FilterActive  = "active"
	FilterDeleted = "deleted"
)

const orgColumns = `id, name, COALESCE(description,''), created_at, updated_at, deleted_at`

// Repository handles organization, membership and invitation persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanOrg(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Description, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	o.IsDeleted = o.DeletedAt != nil
	return &o, nil
}

// GetByID returns an organization by ID, deleted or not.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

// FindByName looks an organization up by name, case-insensitively, including deleted ones.
func (r *Repository) FindByName(ctx context.Context, name string) (*models.Organization, error) {
	return scanOrg(r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE LOWER(name) = LOWER($1)`, name))
}

// CreateForUser creates an organization and makes userID its first member in one transaction.
func (r *Repository) CreateForUser(ctx context.Context, name, description string, userID uuid.UUID) (*models.Organization, error) {
	var org *models.Organization
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		org, err = scanOrg(tx.QueryRow(ctx, `INSERT INTO organizations (name, description)
			VALUES ($1, NULLIF($2,'')) RETURNING `+orgColumns, name, description))
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE users SET organization_id = $2, updated_at = NOW()
			WHERE id = $1 AND organization_id IS NULL`, userID, org.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyMember
		}
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	return org, nil
}

// List returns organizations matching filter (all, active, deleted).
func (r *Repository) List(ctx context.Context, filter string) ([]models.Organization, error) {
	q := `SELECT ` + orgColumns + ` FROM organizations`
	switch filter {
	case FilterActive:
		q += ` WHERE deleted_at IS NULL`
	case FilterDeleted:
		q += ` WHERE deleted_at IS NOT NULL`
	}
	q += ` ORDER BY LOWER(name)`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// ActiveNameTaken reports whether an active organization other than except uses name.
func (r *Repository) ActiveNameTaken(ctx context.Context, name string, except uuid.UUID) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM organizations
		WHERE LOWER(name) = LOWER($1) AND deleted_at IS NULL AND id <> $2)`, name, except).Scan(&taken)
	return taken, err
}

// Update changes name and/or description; nil fields are left alone. An empty description clears it.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Organization, error) {
	const q = `UPDATE organizations SET
			name = COALESCE($2, name),
			description = CASE WHEN $3::text IS NULL THEN description ELSE NULLIF($3, '') END,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + orgColumns
	org, err := scanOrg(r.pool.QueryRow(ctx, q, id, name, description))
	if err != nil && database.IsUniqueViolation(err) {
		return nil, ErrNameTaken
	}
	return org, err
}

// DeleteResult reports what a soft delete touched.
type DeleteResult struct {
	AffectedUsers        int64 `json:"affected_users"`
	CancelledInvitations int64 `json:"cancelled_invitations"`
}

// SoftDelete marks the organization deleted, detaches its members (organizers and team
// members become guests) and drops its pending invitations.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) (DeleteResult, error) {
	var res DeleteResult
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE organizations SET deleted_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		tag, err = tx.Exec(ctx, `UPDATE users SET organization_id = NULL,
				role = CASE WHEN role IN ('organizer', 'team_member') THEN 'guest' ELSE role END,
				updated_at = NOW()
			WHERE organization_id = $1`, id)
		if err != nil {
			return err
		}
		res.AffectedUsers = tag.RowsAffected()
		tag, err = tx.Exec(ctx, `DELETE FROM organization_invitations WHERE organization_id = $1 AND NOT is_accepted`, id)
		if err != nil {
			return err
		}
		res.CancelledInvitations = tag.RowsAffected()
		return nil
	})
	return res, err
}

// Restore clears deleted_at. Fails with ErrNameTaken if an active organization took the name meanwhile.
func (r *Repository) Restore(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `UPDATE organizations o SET deleted_at = NULL, updated_at = NOW()
		WHERE o.id = $1 AND o.deleted_at IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM organizations x
		                  WHERE LOWER(x.name) = LOWER(o.name) AND x.id <> o.id AND x.deleted_at IS NULL)
		RETURNING ` + orgColumns
	return scanOrg(r.pool.QueryRow(ctx, q, id))
}

// ListMembers returns members ordered organizers first, then team members, then guests.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.Member, error) {
	const q = `SELECT id, first_name, last_name, email, role, created_at FROM users
		WHERE organization_id = $1
		ORDER BY CASE role WHEN 'organizer' THEN 1 WHEN 'team_member' THEN 2 WHEN 'guest' THEN 3 ELSE 4 END,
		         first_name, last_name`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Member
	for rows.Next() {
		var m models.Member
		var role string
		if err := rows.Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &role, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		list = append(list, m)
	}
	return list, rows.Err()
}

// ChangeMemberRole moves userID within orgID to role; guest also detaches them. The
// organization's organizer rows stay locked until commit, so concurrent demotions and
// removals cannot leave it without an organizer.
func (r *Repository) ChangeMemberRole(ctx context.Context, orgID, userID uuid.UUID, role models.Role) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id FROM users
			WHERE organization_id = $1 AND role = 'organizer'
			ORDER BY id FOR UPDATE`, orgID)
		if err != nil {
			return err
		}
		organizers := 0
		for rows.Next() {
			organizers++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var current string
		err = tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 AND organization_id = $2 FOR UPDATE`,
			userID, orgID).Scan(&current)
		if err != nil {
			if database.IsNoRows(err) {
				return ErrNotMember
			}
			return err
		}
		if err := CheckOrganizerChange(models.Role(current), role, organizers); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `UPDATE users SET role = $2,
				organization_id = CASE WHEN $2 = 'guest' THEN NULL ELSE organization_id END,
				updated_at = NOW()
			WHERE id = $1`, userID, string(role))
		return err
	})
}

const invitationColumns = `id, organization_id, email, role, invited_by, is_accepted, expires_at, created_at`

func scanInvitation(row pgx.Row) (*models.Invitation, error) {
	var inv models.Invitation
	var role string
	if err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &role, &inv.InvitedBy,
		&inv.IsAccepted, &inv.ExpiresAt, &inv.CreatedAt); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	inv.Role = models.Role(role)
	return &inv, nil
}

// CreateInvitation stores inv unless an unexpired pending invitation exists for the same
// organization and email. An expired pending one is replaced. On ErrActiveInvitation the
// existing invitation is returned.
func (r *Repository) CreateInvitation(ctx context.Context, inv *models.Invitation, now time.Time) (*models.Invitation, error) {
	var existing *models.Invitation
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		cur, err := scanInvitation(tx.QueryRow(ctx, `SELECT `+invitationColumns+` FROM organization_invitations
			WHERE organization_id = $1 AND LOWER(email) = LOWER($2) AND NOT is_accepted
			ORDER BY expires_at DESC LIMIT 1 FOR UPDATE`, inv.OrganizationID, inv.Email))
		switch {
		case err == nil && cur.Active(now):
			existing = cur
			return ErrActiveInvitation
		case err == nil:
			if _, err := tx.Exec(ctx, `DELETE FROM organization_invitations
				WHERE organization_id = $1 AND LOWER(email) = LOWER($2) AND NOT is_accepted`, inv.OrganizationID, inv.Email); err != nil {
				return err
			}
		case !errors.Is(err, models.ErrNotFound):
			return err
		}
		created, err := scanInvitation(tx.QueryRow(ctx, `INSERT INTO organization_invitations
			(organization_id, email, role, invited_by, expires_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING `+invitationColumns,
			inv.OrganizationID, inv.Email, string(inv.Role), inv.InvitedBy, inv.ExpiresAt))
		if err != nil {
			return fmt.Errorf("insert invitation: %w", err)
		}
		*inv = *created
		return nil
	})
	return existing, err
}

// ListActiveInvitations returns the organization's pending, unexpired invitations.
func (r *Repository) ListActiveInvitations(ctx context.Context, orgID uuid.UUID, now time.Time) ([]models.Invitation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invitationColumns+` FROM organization_invitations
		WHERE organization_id = $1 AND NOT is_accepted AND expires_at > $2
		ORDER BY created_at DESC`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inv)
	}
	return list, rows.Err()
}
