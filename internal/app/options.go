package service

import (
	"time"

	"github.com/okian/botpulse/internal/adapters/repository"
	"github.com/okian/botpulse/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithCache sets the range cache. Without one every request hits the API.
func WithCache(store repository.Store) Option {
	return func(s *Service) {
		s.cache = store
	}
}

// WithNotifier sets who is told about finished refreshes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifiers = append(s.notifiers, n)
		}
	}
}

// WithWorkerCount sets the number of refresh workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending refresh jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCacheTTL sets how long a cached range is served without refetching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithRefreshInterval sets the scheduled refresh period; zero disables it.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.refreshInterval = d
		}
	}
}

// WithLocation sets the timezone that decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMovingAverageWindow sets the window used when a derivation names none.
func WithMovingAverageWindow(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.maWindow = days
		}
	}
}

// WithFetchTimeout bounds fetching one range, retries included.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
