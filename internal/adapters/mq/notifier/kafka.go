package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/ladder/internal/adapters/mq/worker"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/pkg/logger"
)

const contentTypeHeader = "Content-Type"

// KafkaPublisher writes score changes to a topic, keyed by player id so
// changes for one player stay ordered within a partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

var _ worker.Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher builds a writer for brokers. An empty topic uses the
// default score change topic.
func NewKafkaPublisher(brokers []string, topic string, l logger.Logger) *KafkaPublisher {
	if topic == "" {
		topic = defaultTopic
	}
	if l == nil {
		l = logger.Get().Named("kafka")
	}
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 100 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			l.Error(context.Background(), fmt.Sprintf(msg, args...))
		}),
	}}
}

// Publish writes events in one call.
func (p *KafkaPublisher) Publish(ctx context.Context, events []worker.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		m, err := messageFor(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return p.w.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

func messageFor(change model.ScoreChange) (kafka.Message, error) {
	value, err := json.Marshal(change)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal score change: %w", err)
	}
	return kafka.Message{
		Key:     []byte(change.PlayerID),
		Value:   value,
		Time:    change.UpdatedAt,
		Headers: []kafka.Header{{Key: contentTypeHeader, Value: []byte("application/json")}},
	}, nil
}

// NewKafkaNotifier is a QueueNotifier publishing to Kafka.
func NewKafkaNotifier(brokers []string, topic string, opts ...Option) *QueueNotifier {
	cfg := settings{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewQueueNotifier(NewKafkaPublisher(brokers, topic, cfg.logger), opts...)
}
