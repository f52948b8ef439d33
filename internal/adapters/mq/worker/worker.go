// Package worker drains the score change queue and hands batches to a
// publisher.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/ladder/internal/adapters/mq/queue"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultBatchSize      = 100
	defaultFlushInterval  = 500 * time.Millisecond
	defaultPublishTimeout = 10 * time.Second
)

// Event abstracts what workers read off the queue.
type Event = queue.Event

// Publisher delivers a batch of events downstream.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// Source is where workers receive events from.
type Source interface {
	Dequeue() <-chan Event
}

// Worker publishes queued events until the source closes.
type Worker struct {
	source    Source
	publisher Publisher
	name      string

	batchSize     int
	flushInterval time.Duration

	done   chan struct{}
	logger logger.Logger
}

// NewWorker creates a new worker with configuration options.
func NewWorker(source Source, publisher Publisher, opts ...Option) *Worker {
	w := &Worker{
		source:        source,
		publisher:     publisher,
		name:          "notify-worker",
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run reads events until the source channel is closed, flushing a batch when
// it is full or the flush interval elapses. Cancelling ctx stops the loop
// without draining.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, w.batchSize)
	events := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				w.flush(ctx, batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// Done is closed once Run returns.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until Run returns or ctx ends.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *Worker) flush(ctx context.Context, batch []Event) {
	if len(batch) == 0 {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultPublishTimeout)
	defer cancel()

	if err := w.publisher.Publish(pctx, batch); err != nil {
		metrics.RecordNotifyFailure()
		metrics.RecordErrorByComponent("worker", "publish_error")
		w.logger.Error(ctx, "publish score changes failed",
			logger.Int("batch", len(batch)),
			logger.Error(err),
		)
		return
	}
	metrics.RecordNotifyPublished(len(batch))
}
