package ranking

import "time"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithClock sets the time source used for lease expiry.
func WithClock(now func() time.Time) Option {
	return func(s *TreapStore) {
		if now != nil {
			s.now = now
		}
	}
}

// RedisOption applies a configuration option to the RedisStore.
type RedisOption func(*RedisStore)

// WithKey sets the sorted set key holding the leaderboard.
func WithKey(key string) RedisOption {
	return func(s *RedisStore) {
		if key != "" {
			s.key = key
		}
	}
}

// WithBatchSize bounds the members sent per ZADD during a bulk load.
func WithBatchSize(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithPageSize bounds the members fetched per ZRANGE when reading everything.
func WithPageSize(n int64) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.pageSize = n
		}
	}
}
