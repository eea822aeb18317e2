package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oziev02/pixelflex/internal/domain"
	"github.com/segmentio/kafka-go"
)

// Producer publishes queue events to a Kafka topic, keyed by item id so that
// every event of one item lands on the same partition.
type Producer interface {
	Publish(ctx context.Context, event domain.ItemEvent) error
	Close() error
}

type producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(brokers []string, topic string, logger *slog.Logger) Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("failed to deliver events", "count", len(messages), "error", err)
			}
		},
	}
	return &producer{writer: writer, logger: logger}
}

func (p *producer) Publish(ctx context.Context, event domain.ItemEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (p *producer) Close() error {
	return p.writer.Close()
}

func newMessage(event domain.ItemEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.Key()),
		Value: data,
		Time:  event.At,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}, nil
}
