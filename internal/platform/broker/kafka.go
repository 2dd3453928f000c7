package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a typed payload published to a topic.
type Message struct {
	Key   string
	Type  string
	Time  time.Time
	Value any
}

// Writer abstracts kafka.Writer for tests.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher serialises messages as JSON and writes them to a single topic.
type KafkaPublisher struct {
	writer  Writer
	timeout time.Duration
}

// NewKafkaPublisher constructs a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("broker: at least one kafka broker required")
	}
	if topic == "" {
		return nil, errors.New("broker: kafka topic required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
	}
	return NewPublisherWithWriter(writer), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w Writer) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second}
}

// Publish writes msg and blocks until the broker acknowledges it.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	if p == nil || p.writer == nil {
		return errors.New("broker: publisher not initialised")
	}
	value, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("broker: marshal %s: %w", msg.Type, err)
	}
	at := msg.Time
	if at.IsZero() {
		at = time.Now().UTC()
	}
	record := kafka.Message{
		Key:   []byte(msg.Key),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(msg.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("broker: write %s: %w", msg.Type, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
