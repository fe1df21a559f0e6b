// Package kafka publishes hold lifecycle events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/cimillas/ultimate-ticket/holds/internal/domain"
)

const typeHeader = "event-type"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements app.EventPublisher. Messages are keyed by user id so
// one buyer's events stay ordered within a partition.
type Publisher struct {
	writer messageWriter
}

// NewWriter returns a kafka writer for topic that hashes keys onto partitions.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, events []domain.HoldEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write hold events: %w", err)
	}
	return nil
}

func encode(events []domain.HoldEvent) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal hold event %s: %w", e.HoldID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(e.UserID),
			Value:   value,
			Time:    e.OccurredAt,
			Headers: []kafka.Header{{Key: typeHeader, Value: []byte(e.Type)}},
		})
	}
	return msgs, nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
