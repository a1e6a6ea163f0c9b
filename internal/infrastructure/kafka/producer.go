// Package kafka moves domain events between the backend and its consumers
// (projector, notifier) over a single topic keyed by aggregate id.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var _ store.Publisher = (*Producer)(nil)

type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer, logger: logger.Named("kafka-producer")}
}

// Publish writes event as JSON. Events of one aggregate share a key and so
// a partition, which keeps them in order.
func (p *Producer) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// BestEffort wraps a publisher so failures are logged instead of returned.
// The event store has already committed the event when it publishes, and the
// read side catches up by replaying the store on restart.
func BestEffort(pub store.Publisher, logger *zap.Logger) store.Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return store.PublisherFunc(func(ctx context.Context, key string, event any) error {
		if err := pub.Publish(ctx, key, event); err != nil {
			logger.Warn("failed to publish event", zap.String("key", key), zap.Error(err))
		}
		return nil
	})
}
