package retention

import (
	"context"
	"log/slog"
	"time"
)

const DefaultEvery = 6 * time.Hour

// Pruner deletes inventory rows that went missing before cutoff.
type Pruner interface {
	DeleteMissingOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Service struct {
	repo          Pruner
	retentionDays int
	log           *slog.Logger
	now           func() time.Time
}

func NewService(repo Pruner, days int, logger *slog.Logger) *Service {
	if days <= 0 {
		days = 14
	}
	return &Service{repo: repo, retentionDays: days, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.repo.DeleteMissingOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "err", err)
		return
	}
	s.log.Info("retention cleanup completed", "cutoff", cutoff, "deleted", n)
}

// Loop runs a cleanup immediately and then every interval until ctx ends.
func (s *Service) Loop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = DefaultEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	s.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Run(ctx)
		}
	}
}
