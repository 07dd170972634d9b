package organizations

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventplanner/backend/internal/models"
	"github.com/eventplanner/backend/pkg/database"
)

// Runs against a real PostgreSQL when TEST_DATABASE_URL is set.
func TestChangeMemberRole_ConcurrentDemotionsKeepAnOrganizer(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, database.Migrate(ctx, pool, zap.NewNop()))

	var orgID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ($1) RETURNING id`,
		"race-"+uuid.NewString()).Scan(&orgID))
	addOrganizer := func() uuid.UUID {
		var id uuid.UUID
		require.NoError(t, pool.QueryRow(ctx, `INSERT INTO users
			(email, password_hash, first_name, last_name, role, organization_id)
			VALUES ($1, 'x', 'F', 'L', 'organizer', $2) RETURNING id`,
			uuid.NewString()+"@example.com", orgID).Scan(&id))
		return id
	}
	a, b := addOrganizer(), addOrganizer()
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = ANY($1)`, []uuid.UUID{a, b})
		_, _ = pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, orgID)
	})

	repo := NewRepository(pool)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []uuid.UUID{a, b} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			errs[i] = repo.ChangeMemberRole(ctx, orgID, id, models.RoleTeamMember)
		}(i, id)
	}
	wg.Wait()

	blocked := 0
	for _, err := range errs {
		if errors.Is(err, ErrLastOrganizer) {
			blocked++
		} else {
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 1, blocked)

	var organizers int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM users
		WHERE organization_id = $1 AND role = 'organizer'`, orgID).Scan(&organizers))
	assert.Equal(t, 1, organizers)

	assert.ErrorIs(t, repo.ChangeMemberRole(ctx, orgID, uuid.New(), models.RoleGuest), ErrNotMember)
}
