package worker

import (
	"time"

	"github.com/okian/ladder/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithBatchSize bounds how many events go into one publish call.
func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval sets how long a partial batch may wait.
func WithFlushInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}
