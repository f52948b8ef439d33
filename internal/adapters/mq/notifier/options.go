package notifier

import (
	"github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/pkg/logger"
)

const (
	defaultCapacity = 10000
	defaultTopic    = "ladder-score-changes"
)

type settings struct {
	capacity   int
	logger     logger.Logger
	workerOpts []worker.Option
}

// Option applies a configuration option to the QueueNotifier.
type Option func(*settings)

// WithCapacity bounds the number of pending changes.
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithLogger sets the logger used by the notifier and its worker.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkerOptions passes options through to the drain worker.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(s *settings) {
		s.workerOpts = append(s.workerOpts, opts...)
	}
}
