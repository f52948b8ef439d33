// Package queue buffers score change notifications between the write path
// and the publisher.
//
// Enqueue never blocks; a full queue drops the notification so a slow
// broker cannot stall score updates.
package queue

import (
	"context"
	"sync"

	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Event represents the payload type flowing through the queue.
type Event = model.ScoreChange

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event to the queue.
	// Returns false if the queue is full or closed and the event was dropped.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns the channel events are received from. The channel is
	// closed when the queue is closed and drained.
	Dequeue() <-chan Event

	// Len returns the current number of queued events.
	Len() int

	// Close stops accepting events.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	mu       sync.RWMutex
	closed   bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	metrics.UpdateNotifyQueueSize(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		metrics.RecordNotifyDropped()
		return false
	}

	select {
	case q.events <- e:
		metrics.UpdateNotifyQueueSize(len(q.events))
		return true
	default:
		metrics.RecordNotifyDropped()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns the underlying channel.
func (q *InMemoryQueue) Dequeue() <-chan Event {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	size := len(q.events)
	metrics.UpdateNotifyQueueSize(size)
	return size
}

// Close stops accepting events. Events already queued stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	close(q.events)
	q.closed = true
	return nil
}
