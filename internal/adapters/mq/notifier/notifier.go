// Package notifier publishes score changes to downstream consumers.
package notifier

import (
	"context"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/logger"
)

// Notifier is told about every applied score update. Implementations must
// not block the caller on network I/O.
type Notifier interface {
	ScoreUpdated(ctx context.Context, change model.ScoreChange)
	Close(ctx context.Context) error
}

// NopNotifier discards every change.
type NopNotifier struct{}

// ScoreUpdated implements Notifier.
func (NopNotifier) ScoreUpdated(context.Context, model.ScoreChange) {}

// Close implements Notifier.
func (NopNotifier) Close(context.Context) error { return nil }

// QueueNotifier buffers changes in a bounded queue drained by a worker that
// hands batches to a publisher.
type QueueNotifier struct {
	queue     *queue.InMemoryQueue
	worker    *worker.Worker
	publisher worker.Publisher
	logger    logger.Logger
}

var _ Notifier = (*QueueNotifier)(nil)

// NewQueueNotifier starts the drain worker. The worker lives until Close.
func NewQueueNotifier(publisher worker.Publisher, opts ...Option) *QueueNotifier {
	cfg := settings{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Get().Named("notifier")
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(cfg.capacity))
	w := worker.NewWorker(q, publisher, append(cfg.workerOpts, worker.WithLogger(cfg.logger))...)
	go w.Run(context.Background())

	return &QueueNotifier{queue: q, worker: w, publisher: publisher, logger: cfg.logger}
}

// ScoreUpdated enqueues change, dropping it when the queue is full.
func (n *QueueNotifier) ScoreUpdated(ctx context.Context, change model.ScoreChange) {
	if !n.queue.Enqueue(ctx, change) {
		n.logger.Warn(ctx, "score change dropped", logger.String("player_id", change.PlayerID))
	}
}

// Close stops accepting changes, waits for queued ones to publish, then
// closes the publisher when it supports it.
func (n *QueueNotifier) Close(ctx context.Context) error {
	if err := n.queue.Close(); err != nil {
		return err
	}
	if err := n.worker.Wait(ctx); err != nil {
		return err
	}
	if c, ok := n.publisher.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
