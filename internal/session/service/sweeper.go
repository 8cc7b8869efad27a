package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"outreach-tracker/backend/internal/session/repository"
)

const sweepTimeout = 30 * time.Second

// Sweeper deletes expired sessions on a cron schedule.
type Sweeper struct {
	repo   repository.Repository
	cron   *cron.Cron
	logger *zap.Logger
	now    func() time.Time
}

// NewSweeper schedules SweepOnce with spec (standard cron or "@every 15m").
func NewSweeper(repo repository.Repository, spec string, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		repo:   repo,
		cron:   cron.New(),
		logger: logger.Named("session_sweeper"),
		now:    time.Now,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Warn("sweep expired sessions", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop stops scheduling and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// SweepOnce deletes expired sessions now.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", zap.Int64("count", n))
	}
	return n, nil
}
