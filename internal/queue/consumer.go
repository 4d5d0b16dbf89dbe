package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Delivery is one message pulled off the job topic. Value holds the raw job
// envelope; decoding is the worker's problem so that malformed envelopes can
// still be dead-lettered verbatim.
type Delivery struct {
	Topic   string
	Key     []byte
	Value   []byte
	Offset  int64
	Headers []kafka.Header
}

// DeliveryFunc handles a single delivery. Returning nil commits the offset;
// returning an error leaves it uncommitted, so the broker re-delivers
// (at-least-once).
type DeliveryFunc func(ctx context.Context, d Delivery) error

// Consumer is one member of the worker consumer group.
type Consumer interface {
	Consume(ctx context.Context, fn DeliveryFunc) error
	Close() error
}

type kafkaConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

// NewConsumer creates a group consumer for the job topic. Each call creates
// an independent group member, so a worker pool of size N holds N consumers
// under one groupID.
func NewConsumer(brokers []string, groupID string, logger *slog.Logger) Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          TopicJobs,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10 MB
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0, // manual commit only
		StartOffset:    kafka.FirstOffset,
	})
	return &kafkaConsumer{reader: r, logger: logger}
}

// Consume fetches deliveries in a loop until ctx is cancelled, committing
// offsets only after fn returns nil.
func (c *kafkaConsumer) Consume(ctx context.Context, fn DeliveryFunc) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil // normal shutdown
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		// Continue any trace the producer injected into the headers.
		carrier := HeaderCarrier(m.Headers)
		msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

		d := Delivery{
			Topic:   m.Topic,
			Key:     m.Key,
			Value:   m.Value,
			Offset:  m.Offset,
			Headers: m.Headers,
		}

		if err := fn(msgCtx, d); err != nil {
			// Do NOT commit: the broker re-delivers after rebalance/restart.
			c.logger.Error("delivery handler failed, skipping commit",
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Error("failed to commit kafka offset",
				slog.Int64("offset", m.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}
