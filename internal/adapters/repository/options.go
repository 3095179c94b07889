package repository

import "time"

type settings struct {
	now func() time.Time
}

func defaultSettings() settings {
	return settings{now: time.Now}
}

// Option applies a configuration option to a Store.
type Option func(*settings)

// WithClock sets the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
