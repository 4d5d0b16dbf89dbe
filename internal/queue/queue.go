package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"github.com/codeheim/taskpulse/internal/domain"
)

// TopicJobs is the single job topic producers enqueue to and the worker pool
// consumes from. TopicJobsDLQ receives jobs that exhausted their retries.
const (
	TopicJobs    = "tasks.jobs"
	TopicJobsDLQ = "tasks.jobs.dlq"
)

// JobQueue is the enqueue side of the pipeline. The broker guarantees
// at-least-once delivery to exactly one member of the worker consumer group;
// handlers are responsible for idempotency.
type JobQueue interface {
	// Enqueue wraps payload in a job envelope and publishes it. Returns the
	// generated job ID.
	Enqueue(ctx context.Context, jobType string, payload any) (jobID string, err error)
	// DeadLetter publishes a raw message to the DLQ topic.
	DeadLetter(ctx context.Context, key string, value []byte) error
	Close() error
}

type kafkaQueue struct {
	writer *kafka.Writer
}

// NewJobQueue creates a Kafka-backed JobQueue connected to the given brokers.
func NewJobQueue(brokers []string) JobQueue {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{}, // key → deterministic partition
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		// Auto-create topics if they don't exist
		AllowAutoTopicCreation: true,
	}
	return &kafkaQueue{writer: w}
}

func (q *kafkaQueue) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", jobType, err)
	}

	job := domain.Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job envelope: %w", err)
	}

	// Keyed by job ID so redeliveries of the same job land on one partition.
	if err := q.publish(ctx, TopicJobs, job.ID, value); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *kafkaQueue) DeadLetter(ctx context.Context, key string, value []byte) error {
	return q.publish(ctx, TopicJobsDLQ, key, value)
}

func (q *kafkaQueue) publish(ctx context.Context, topic, key string, value []byte) error {
	// Inject the active trace context into message headers so the worker can
	// extract and continue the trace.
	headers := make(HeaderCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &headers)

	err := q.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header(headers),
		Time:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", topic, err)
	}
	return nil
}

func (q *kafkaQueue) Close() error {
	return q.writer.Close()
}
