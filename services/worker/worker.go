// Package worker implements the job dispatcher: a pool of queue consumers
// that route deliveries by job type to registered handlers.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codeheim/taskpulse/internal/domain"
	"github.com/codeheim/taskpulse/internal/handlers"
	"github.com/codeheim/taskpulse/internal/queue"
	"github.com/codeheim/taskpulse/pkg/retry"
	"github.com/codeheim/taskpulse/pkg/telemetry"
)

// ConsumerFactory builds one consumer-group member per pool slot.
type ConsumerFactory func() queue.Consumer

// Worker consumes jobs from the queue and dispatches them to handlers.
// Delivery is at-least-once; a job is acknowledged once its outcome is
// settled (success, business failure, or retries exhausted and dead-lettered).
type Worker struct {
	workerID    string
	factory     ConsumerFactory
	jobs        queue.JobQueue
	registry    *handlers.Registry
	concurrency int
	maxRetries  int
	timeout     time.Duration
	baseDelay   time.Duration
	logger      *slog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

func WithConcurrency(n int) Option         { return func(w *Worker) { w.concurrency = n } }
func WithRetries(n int) Option             { return func(w *Worker) { w.maxRetries = n } }
func WithTimeout(d time.Duration) Option   { return func(w *Worker) { w.timeout = d } }
func WithBaseDelay(d time.Duration) Option { return func(w *Worker) { w.baseDelay = d } }
func WithLogger(l *slog.Logger) Option     { return func(w *Worker) { w.logger = l } }

// NewWorker constructs a Worker with the given dependencies and options.
func NewWorker(
	workerID string,
	factory ConsumerFactory,
	jobs queue.JobQueue,
	registry *handlers.Registry,
	opts ...Option,
) *Worker {
	w := &Worker{
		workerID:    workerID,
		factory:     factory,
		jobs:        jobs,
		registry:    registry,
		concurrency: 4,
		maxRetries:  3,
		timeout:     30 * time.Second,
		baseDelay:   time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the consumer pool and blocks until ctx is cancelled. An empty
// registry is a startup error, not something to discover one delivery at a
// time.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.registry.Types()) == 0 {
		return errors.New("worker started with no registered job handlers")
	}

	errCh := make(chan error, w.concurrency)
	var loops sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		consumer := w.factory()
		loops.Add(1)
		go func() {
			defer loops.Done()
			defer func() { _ = consumer.Close() }()
			if err := consumer.Consume(ctx, w.processDelivery); err != nil {
				errCh <- err
			}
		}()
	}
	loops.Wait()
	close(errCh)
	return <-errCh
}

// Wait blocks until all in-flight jobs finish. Call after Run returns.
func (w *Worker) Wait() { w.wg.Wait() }

// processDelivery is the queue.DeliveryFunc called once per delivery.
// Returning nil acknowledges; returning an error leaves the offset
// uncommitted so the broker redelivers.
func (w *Worker) processDelivery(consumerCtx context.Context, d queue.Delivery) error {
	var job domain.Job
	if err := json.Unmarshal(d.Value, &job); err != nil {
		// The envelope itself is broken; park it for inspection and move on.
		w.logger.Error("malformed job envelope, dead-lettering",
			slog.String("error", err.Error()),
			slog.String("raw", string(d.Value)),
		)
		telemetry.WorkerDLQTotal.Inc()
		if err := w.jobs.DeadLetter(consumerCtx, string(d.Key), d.Value); err != nil {
			return fmt.Errorf("dead-letter malformed envelope: %w", err)
		}
		return nil
	}

	ctx, span := otel.Tracer("worker").Start(consumerCtx, "worker.process_job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.Type),
		attribute.String("worker.id", w.workerID),
	)

	log := w.logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
	)

	h, err := w.registry.Get(job.Type)
	if err != nil {
		// Redelivery can never resolve an unrecognised type: settle it now.
		log.Warn("unknown job type, acknowledging", slog.String("error", err.Error()))
		span.SetStatus(codes.Error, "unknown job type")
		telemetry.WorkerJobsProcessed.WithLabelValues(job.Type, "unknown_type").Inc()
		return nil
	}

	w.wg.Add(1)
	w.inFlight.Add(1)
	telemetry.WorkerJobsInFlight.Inc()
	defer func() {
		telemetry.WorkerJobsInFlight.Dec()
		w.inFlight.Add(-1)
		w.wg.Done()
	}()

	start := time.Now()
	var result *domain.JobResult

	execErr := retry.Do(ctx, retry.Config{
		MaxAttempts: w.maxRetries + 1,
		BaseDelay:   w.baseDelay,
		OnRetry: func(attempt int, retryErr error) {
			telemetry.WorkerRetriesTotal.WithLabelValues(job.Type).Inc()
			log.Warn("attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		job.Attempts++
		// Fresh context so the per-job timeout is independent of consumer
		// shutdown, while handler child spans stay parented here.
		execCtx, cancel := context.WithTimeout(
			trace.ContextWithSpan(context.Background(), span),
			w.timeout,
		)
		defer cancel()

		var handleErr error
		result, handleErr = h.Handle(execCtx, &job)
		return handleErr
	})

	telemetry.WorkerJobDurationSeconds.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())

	if execErr != nil {
		// Infrastructure failure survived every retry: dead-letter and settle.
		log.Error("job dead after all retries",
			slog.Int("attempts", job.Attempts),
			slog.String("error", execErr.Error()),
		)
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "job exhausted all retries")
		telemetry.WorkerJobsProcessed.WithLabelValues(job.Type, "dead").Inc()
		telemetry.WorkerDLQTotal.Inc()
		if err := w.jobs.DeadLetter(ctx, job.ID, d.Value); err != nil {
			// Keep the offset uncommitted so nothing is lost.
			return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
		}
		return nil
	}

	if result != nil && !result.Success {
		log.Info("job settled with business failure",
			slog.String("task_id", result.TaskID),
			slog.String("error", result.Error),
		)
		telemetry.WorkerJobsProcessed.WithLabelValues(job.Type, "rejected").Inc()
		return nil
	}

	log.Info("job completed",
		slog.Int("attempts", job.Attempts),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	telemetry.WorkerJobsProcessed.WithLabelValues(job.Type, "ok").Inc()
	return nil
}
