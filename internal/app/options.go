package service

import (
	"time"

	"github.com/okian/ladder/internal/adapters/mq/notifier"
	"github.com/okian/ladder/pkg/logger"
)

// Default service configuration constants.
const (
	defaultStoreTimeout = 2 * time.Second
	defaultMaxLimit     = 1000
	defaultLockKey      = "leaderboard:recovery:lock"
	defaultLockTTL      = 300 * time.Second
	defaultBatchSize    = 1000
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for composite keys.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreTimeout bounds every single-key store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithMaxLimit sets the upper clamp for top-N requests.
func WithMaxLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithNotifier publishes applied score changes.
func WithNotifier(n notifier.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLock sets the recovery lock name and lease.
func WithLock(key string, ttl time.Duration) Option {
	return func(s *Service) {
		if key != "" {
			s.lockKey = key
		}
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithRebuildBatchSize bounds members per bulk load call during a rebuild.
func WithRebuildBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTokenSource replaces the lock owner token generator.
func WithTokenSource(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newToken = next
		}
	}
}
