package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredInvitationDeleter removes organization invitations that expired before cutoff.
type ExpiredInvitationDeleter interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// InvitationSweeper periodically purges long-expired organization invitations.
type InvitationSweeper struct {
	store     ExpiredInvitationDeleter
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewInvitationSweeper runs hourly and keeps expired invitations for 30 days.
func NewInvitationSweeper(store ExpiredInvitationDeleter, logger *zap.Logger) *InvitationSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationSweeper{
		store:     store,
		interval:  time.Hour,
		retention: 30 * 24 * time.Hour,
		now:       time.Now,
		logger:    logger,
	}
}

// SweepOnce deletes invitations that expired more than the retention period ago.
func (s *InvitationSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired invitations purged", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *InvitationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("invitation sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("invitation sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}
