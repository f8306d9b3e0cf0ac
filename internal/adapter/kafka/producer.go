package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Producer implements ports.NotificationPublisher on a Kafka topic.
// Writes are async; the payment flow never blocks on the broker.
type Producer struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewProducer creates a Kafka-backed notification publisher.
func NewProducer(brokers []string, topic string, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafka producer initialized")

	return &Producer{
		writer: writer,
		log:    log,
	}
}

// Publish sends one marketplace event, keyed by recipient so per-user
// ordering is preserved within a partition.
func (p *Producer) Publish(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID.String()),
		Value: value,
		Time:  event.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	p.log.Debug().
		Str("event", string(event.Type)).
		Str("user_id", event.UserID.String()).
		Msg("event published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p.writer != nil {
		p.log.Info().Msg("closing Kafka producer")
		return p.writer.Close()
	}
	return nil
}

// NopPublisher discards events. Used when Kafka is disabled in config.
type NopPublisher struct{}

// NewNopPublisher creates a publisher that drops everything.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

func (*NopPublisher) Publish(context.Context, domain.Event) error { return nil }

func (*NopPublisher) Close() error { return nil }
