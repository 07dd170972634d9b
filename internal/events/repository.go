package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/database"
)

// Listing filters.
const (
	FilterPublic = "public"
	FilterMyOrg  = "my_org"
	FilterAll    = "all"

	StateActive  = "active"
	StateDeleted = "deleted"
	StateAll     = "all"
)

const viewColumns = `e.id, e.title, COALESCE(e.description,''), to_char(e.event_date,'YYYY-MM-DD'),
	to_char(e.event_time,'HH24:MI'), e.location, e.category, e.is_public, COALESCE(e.cover_image_key,''),
	e.organization_id, e.user_id, e.created_at, e.updated_at, e.deleted_at,
	o.name, u.id, COALESCE(u.first_name || ' ' || u.last_name, ''), COALESCE(u.email, '')`

const viewFrom = ` FROM events e
	JOIN organizations o ON o.id = e.organization_id
	LEFT JOIN users u ON u.id = e.user_id`

// ListParams narrows an event listing. OrgID is required for FilterMyOrg.
type ListParams struct {
	Filter   string
	State    string
	OrgID    *uuid.UUID
	Search   string
	Category string
	DateFrom string
	DateTo   string
	Limit    int
	Offset   int
}

// Patch holds the fields of a partial event update; nil leaves a field unchanged.
type Patch struct {
	Title       *string
	Description *string
	Date        *string
	Time        *string
	Location    *string
	Category    *string
	IsPublic    *bool
}

// Repository handles events persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanView(row pgx.Row) (*models.EventView, error) {
	var v models.EventView
	var organizerID *uuid.UUID
	var organizerName, organizerEmail string
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.Date, &v.Time, &v.Location, &v.Category, &v.IsPublic,
		&v.CoverImageKey, &v.OrganizationID, &v.UserID, &v.CreatedAt, &v.UpdatedAt, &v.DeletedAt,
		&v.OrganizationName, &organizerID, &organizerName, &organizerEmail)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if organizerID != nil {
		v.Organizer = &models.Organizer{ID: *organizerID, Name: strings.TrimSpace(organizerName), Email: organizerEmail}
	}
	return &v, nil
}

// GetByID returns a live (not deleted) event with its organization and organizer.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.EventView, error) {
	return scanView(r.pool.QueryRow(ctx, `SELECT `+viewColumns+viewFrom+` WHERE e.id = $1 AND e.deleted_at IS NULL`, id))
}

// Create inserts e and fills its ID and timestamps.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (title, description, event_date, event_time, location, category, is_public, organization_id, user_id)
		VALUES ($1, NULLIF($2,''), $3::date, $4::time, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Title, e.Description, e.Date, e.Time, e.Location, e.Category, e.IsPublic,
		e.OrganizationID, e.UserID).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update applies p to a live event.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p Patch) error {
	const q = `UPDATE events SET
		title = COALESCE($2, title),
		description = COALESCE($3, description),
		event_date = COALESCE($4::date, event_date),
		event_time = COALESCE($5::time, event_time),
		location = COALESCE($6, location),
		category = COALESCE($7, category),
		is_public = COALESCE($8, is_public),
		updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, p.Title, p.Description, p.Date, p.Time, p.Location, p.Category, p.IsPublic)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SoftDelete marks a live event deleted.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetCoverKey stores the object key of the event cover image.
func (r *Repository) SetCoverKey(ctx context.Context, id uuid.UUID, key string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET cover_image_key = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// List returns one page of events ordered by date and time, and the total number of matches.
func (r *Repository) List(ctx context.Context, p ListParams) ([]models.EventView, int, error) {
	where, args := buildWhere(p)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+viewFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	args = append(args, p.Limit, p.Offset)
	q := `SELECT ` + viewColumns + viewFrom + where +
		fmt.Sprintf(` ORDER BY e.event_date, e.event_time LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	list := []models.EventView{}
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *v)
	}
	return list, total, rows.Err()
}

// buildWhere renders p as a WHERE clause with positional arguments.
func buildWhere(p ListParams) (string, []interface{}) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch p.State {
	case StateDeleted:
		conds = append(conds, "e.deleted_at IS NOT NULL")
	case StateAll:
	default:
		conds = append(conds, "e.deleted_at IS NULL")
	}
	switch p.Filter {
	case FilterPublic:
		conds = append(conds, "e.is_public")
	case FilterMyOrg:
		if p.OrgID != nil {
			conds = append(conds, "e.organization_id = "+arg(*p.OrgID))
		}
	}
	if s := strings.TrimSpace(p.Search); s != "" {
		ph := arg(database.ContainsPattern(s))
		conds = append(conds, fmt.Sprintf(`(e.title ILIKE %[1]s ESCAPE '\' OR e.description ILIKE %[1]s ESCAPE '\'`+
			` OR e.location ILIKE %[1]s ESCAPE '\')`, ph))
	}
	if p.Category != "" {
		conds = append(conds, "e.category = "+arg(p.Category))
	}
	if p.DateFrom != "" {
		conds = append(conds, "e.event_date >= "+arg(p.DateFrom)+"::date")
	}
	if p.DateTo != "" {
		conds = append(conds, "e.event_date <= "+arg(p.DateTo)+"::date")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
