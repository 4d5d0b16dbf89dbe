// Package scanner runs the periodic overdue sweep: find PENDING tasks whose
// due date has passed and enqueue one overdue-mark job per task. The scanner
// only detects and enqueues; the status mutation happens in the worker.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/codeheim/taskpulse/internal/domain"
	"github.com/codeheim/taskpulse/internal/postgres"
	"github.com/codeheim/taskpulse/internal/queue"
	"github.com/codeheim/taskpulse/internal/redis"
	"github.com/codeheim/taskpulse/pkg/telemetry"
)

// Leader is satisfied by redis.LeaderLock. Multiple scanner replicas may run;
// only the lock holder executes a sweep.
type Leader interface {
	AcquireOrRenew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Scanner owns the cron schedule and the sweep logic.
type Scanner struct {
	store     postgres.TaskStore
	jobs      queue.JobQueue
	leader    Leader
	batchSize int
	logger    *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

func WithBatchSize(n int) Option         { return func(s *Scanner) { s.batchSize = n } }
func WithLeader(l Leader) Option         { return func(s *Scanner) { s.leader = l } }
func WithLogger(log *slog.Logger) Option { return func(s *Scanner) { s.logger = log } }

// NewScanner constructs a Scanner. Without WithLeader every tick runs the
// sweep, which is fine for a single instance.
func NewScanner(store postgres.TaskStore, jobs queue.JobQueue, opts ...Option) *Scanner {
	s := &Scanner{
		store:     store,
		jobs:      jobs,
		batchSize: 500,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run schedules the sweep on the given cron spec (standard five-field syntax)
// and blocks until ctx is cancelled. Overlapping runs are skipped rather than
// stacked, so a slow sweep never doubles up.
func (s *Scanner) Run(ctx context.Context, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return err
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	_, err := c.AddFunc(spec, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("overdue sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return err
	}

	s.logger.Info("overdue scanner started", slog.String("schedule", spec))
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()

	if s.leader != nil {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.leader.Release(releaseCtx); err != nil {
			s.logger.Warn("failed to release leader lock", slog.String("error", err.Error()))
		}
	}
	return nil
}

// Sweep executes one scan: list PENDING tasks past their due date and enqueue
// an overdue-mark job for each. A task is never mutated here, so a task whose
// due date passes during the sweep is simply picked up next tick. Enqueue
// failures are isolated per task; the rest of the batch still goes out.
func (s *Scanner) Sweep(ctx context.Context) error {
	if s.leader != nil {
		isLeader, err := s.leader.AcquireOrRenew(ctx)
		if err != nil {
			return err
		}
		if !isLeader {
			s.logger.Debug("not the leader, skipping sweep")
			return nil
		}
	}

	ctx, span := otel.Tracer("scanner").Start(ctx, "scanner.sweep")
	defer span.End()

	now := time.Now().UTC()
	tasks, err := s.store.ListOverdue(ctx, now, s.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "overdue query failed")
		return err
	}

	enqueued := 0
	for _, task := range tasks {
		jobID, err := s.jobs.Enqueue(ctx, domain.JobMarkOverdue, domain.OverduePayload{TaskID: task.ID})
		if err != nil {
			// The task stays PENDING and past due, so the next sweep
			// finds it again. Nothing is lost, only delayed.
			s.logger.Error("failed to enqueue overdue job",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
		s.logger.Debug("overdue job enqueued",
			slog.String("task_id", task.ID),
			slog.String("job_id", jobID),
		)
	}

	span.SetAttributes(
		attribute.Int("sweep.found", len(tasks)),
		attribute.Int("sweep.enqueued", enqueued),
	)
	telemetry.ScannerRunsTotal.Inc()
	telemetry.ScannerOverdueFound.Add(float64(len(tasks)))
	telemetry.ScannerOverdueEnqueued.Add(float64(enqueued))

	if len(tasks) > 0 {
		s.logger.Info("overdue sweep complete",
			slog.Int("found", len(tasks)),
			slog.Int("enqueued", enqueued),
		)
	} else {
		s.logger.Debug("overdue sweep complete, nothing due")
	}
	return nil
}

var _ Leader = (*redis.LeaderLock)(nil)
