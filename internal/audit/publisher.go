// Package audit publishes terminal webhook-processing outcomes to Kafka
// for downstream reporting. Best-effort: publishing failures are logged by
// callers and never fail the task that produced them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeOrphaned  Outcome = "orphaned"
	OutcomeSkipped   Outcome = "notification_skipped"
	OutcomeDropped   Outcome = "dropped"
)

// Entry is one processed webhook event's terminal result.
type Entry struct {
	PaymentID string    `json:"payment_id"`
	EventType string    `json:"event_type"`
	BookingID string    `json:"booking_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// PublisherConfig configures the Kafka publisher.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "bookings.payment-events",
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewPublisher(config PublisherConfig, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Compression:  kafka.Snappy,
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}
}

// Record publishes one entry, keyed by booking id so per-booking ordering
// is preserved in the topic.
func (p *Publisher) Record(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	key := entry.BookingID
	if key == "" {
		key = entry.PaymentID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
