package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/database"
)

// ErrEmailTaken is returned when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// UserColumns is the select list ScanUser expects.
const UserColumns = `id, email, password_hash, first_name, last_name, role, organization_id,
	pending_organizer_approval, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ScanUser reads a row selected with the user column list.
func ScanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FirstName, &u.LastName, &role,
		&u.OrganizationID, &u.PendingOrganizerApproval, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email, case-insensitively.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return ScanUser(r.pool.QueryRow(ctx, `SELECT `+UserColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

// CreateUserParams holds the fields for a new user.
type CreateUserParams struct {
	Email                    string
	PasswordHash             string
	FirstName                string
	LastName                 string
	Role                     models.Role
	PendingOrganizerApproval bool
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, p CreateUserParams) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, first_name, last_name, role, pending_organizer_approval)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + UserColumns
	u, err := ScanUser(r.pool.QueryRow(ctx, q, p.Email, p.PasswordHash, p.FirstName, p.LastName,
		string(p.Role), p.PendingOrganizerApproval))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UpdatePassword stores a new password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountAdmins returns how many admin accounts exist.
func (r *Repository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = 'admin'`).Scan(&n)
	return n, err
}

// ListAdmins returns every admin account.
func (r *Repository) ListAdmins(ctx context.Context) ([]models.User, error) {
	return r.list(ctx, `SELECT `+UserColumns+` FROM users WHERE role = 'admin' ORDER BY created_at`)
}

// ListPendingOrganizers returns guests waiting for organizer approval.
func (r *Repository) ListPendingOrganizers(ctx context.Context) ([]models.User, error) {
	return r.list(ctx, `SELECT `+UserColumns+` FROM users
		WHERE pending_organizer_approval AND role = 'guest' ORDER BY created_at`)
}

// ResolveOrganizerRequest clears a pending organizer request, promoting the user when approve is set.
func (r *Repository) ResolveOrganizerRequest(ctx context.Context, id uuid.UUID, approve bool) (*models.User, error) {
	const q = `UPDATE users
		SET role = CASE WHEN $2 THEN 'organizer' ELSE role END,
		    pending_organizer_approval = FALSE,
		    updated_at = NOW()
		WHERE id = $1 AND pending_organizer_approval AND role = 'guest'
		RETURNING ` + UserColumns
	return ScanUser(r.pool.QueryRow(ctx, q, id, approve))
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.User, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		u, err := ScanUser(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *u)
	}
	return list, rows.Err()
}
