package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeleter struct {
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeDeleter) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func TestSweepOnce_UsesRetentionCutoff(t *testing.T) {
	store := &fakeDeleter{n: 4}
	s := NewInvitationSweeper(store, zap.NewNop())
	now := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	require.Len(t, store.cutoffs, 1)
	assert.Equal(t, time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC), store.cutoffs[0])
}

func TestSweepOnce_Error(t *testing.T) {
	s := NewInvitationSweeper(&fakeDeleter{err: errors.New("db gone")}, zap.NewNop())
	_, err := s.SweepOnce(context.Background())
	assert.Error(t, err)
}

func TestRun_SweepsImmediatelyAndStops(t *testing.T) {
	store := &fakeDeleter{}
	s := NewInvitationSweeper(store, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)
	assert.Len(t, store.cutoffs, 1)
}
