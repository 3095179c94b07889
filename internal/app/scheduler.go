package service

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/okian/botpulse/pkg/logger"
)

// newScheduler registers the periodic refresh of every department and the
// cache purge. Both first run one interval after start.
func (s *Service) newScheduler(ctx context.Context) (*gocron.Scheduler, error) {
	sched := gocron.NewScheduler(s.loc)
	sched.SingletonModeAll()

	if _, err := sched.Every(s.refreshInterval).WaitForSchedule().Do(func() {
		s.scheduleAll(ctx)
	}); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if _, err := sched.Every(s.purgeInterval()).WaitForSchedule().Do(func() {
			s.purge(ctx)
		}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// scheduleAll queues a refresh for every department in the catalog.
func (s *Service) scheduleAll(ctx context.Context) {
	for _, d := range s.Departments(ctx) {
		res, err := s.RequestRefresh(ctx, d.ID, "schedule")
		if err != nil {
			s.logger.Warn(ctx, "scheduled refresh not queued",
				logger.String("department", d.ID), logger.Error(err))
			continue
		}
		s.logger.Debug(ctx, "scheduled refresh",
			logger.String("department", d.ID), logger.String("result", string(res)))
	}
}

// purgeInterval is how often entries nobody can use any more are dropped.
func (s *Service) purgeInterval() time.Duration {
	return max(s.refreshInterval, time.Hour)
}

// purge drops cache entries older than a day past their TTL. Older entries
// are kept that long so stale-if-error still has something to serve.
func (s *Service) purge(ctx context.Context) {
	cutoff := s.now().Add(-s.cacheTTL - 24*time.Hour)
	n, err := s.cache.Purge(ctx, cutoff)
	if err != nil {
		s.logger.Warn(ctx, "cache purge failed", logger.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "cache purged", logger.Int("removed", n))
	}
}
