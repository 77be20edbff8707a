package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/somedsale/quotelist/pkg/source"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds Kafka publisher configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher publishes one event per new row, keyed by row id.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a KafkaPublisher. Writes are synchronous so a
// failed batch surfaces as an error of the cycle that produced it.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Notify(ctx context.Context, rows []source.Row) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(rows))
	for i, r := range rows {
		value, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to serialize row %d: %w", r.ID, err)
		}
		msgs[i] = kafka.Message{Key: []byte(strconv.FormatInt(r.ID, 10)), Value: value}
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d row events: %w", len(msgs), err)
	}
	return nil
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
