package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/codeheim/taskpulse/internal/domain"
)

// OverdueHandler marks a single scanned task as OVERDUE. The task may have
// been deleted or re-actioned between scan and delivery; both outcomes settle
// the job rather than failing the worker.
type OverdueHandler struct {
	tasks  TaskMutator
	logger *slog.Logger
}

// NewOverdueHandler creates an OverdueHandler.
func NewOverdueHandler(tasks TaskMutator, logger *slog.Logger) *OverdueHandler {
	return &OverdueHandler{tasks: tasks, logger: logger}
}

func (h *OverdueHandler) JobType() string { return domain.JobMarkOverdue }

func (h *OverdueHandler) Handle(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "handler.overdue")
	defer span.End()

	var p domain.OverduePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		span.SetStatus(codes.Error, "malformed payload")
		return &domain.JobResult{Success: false, Error: "invalid overdue payload"}, nil
	}
	if p.TaskID == "" {
		span.SetStatus(codes.Error, "missing task id")
		return &domain.JobResult{Success: false, Error: "missing required data"}, nil
	}
	span.SetAttributes(attribute.String("task.id", p.TaskID))

	task, err := h.tasks.MarkOverdue(ctx, p.TaskID)
	if err != nil {
		if settled(err) {
			// Expected under concurrent deletion; the scan is stale, not broken.
			h.logger.Info("overdue mark skipped",
				slog.String("task_id", p.TaskID),
				slog.String("error", err.Error()),
			)
			return &domain.JobResult{Success: false, TaskID: p.TaskID, Error: err.Error()}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failure")
		return nil, err
	}

	return &domain.JobResult{
		Success:   true,
		TaskID:    task.ID,
		NewStatus: task.Status,
	}, nil
}

// OverdueBatchHandler handles the batched variant carrying a list of task
// ids, aggregating per-id outcomes exactly like a batch operation: one bad id
// never aborts its siblings.
type OverdueBatchHandler struct {
	tasks  TaskMutator
	logger *slog.Logger
}

// NewOverdueBatchHandler creates an OverdueBatchHandler.
func NewOverdueBatchHandler(tasks TaskMutator, logger *slog.Logger) *OverdueBatchHandler {
	return &OverdueBatchHandler{tasks: tasks, logger: logger}
}

func (h *OverdueBatchHandler) JobType() string { return domain.JobOverdueBatch }

func (h *OverdueBatchHandler) Handle(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "handler.overdue_batch")
	defer span.End()

	var p domain.OverdueBatchPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		span.SetStatus(codes.Error, "malformed payload")
		return &domain.JobResult{Success: false, Error: "invalid or missing task_ids array"}, nil
	}
	if p.TaskIDs == nil {
		span.SetStatus(codes.Error, "missing task_ids")
		return &domain.JobResult{Success: false, Error: "invalid or missing task_ids array"}, nil
	}
	span.SetAttributes(attribute.Int("batch.size", len(p.TaskIDs)))

	details := make([]domain.ItemResult, 0, len(p.TaskIDs))
	for _, id := range p.TaskIDs {
		if _, err := h.tasks.MarkOverdue(ctx, id); err != nil {
			h.logger.Warn("failed to mark task overdue",
				slog.String("task_id", id),
				slog.String("error", err.Error()),
			)
			details = append(details, domain.ItemResult{TaskID: id, Success: false, Error: err.Error()})
			continue
		}
		details = append(details, domain.ItemResult{TaskID: id, Success: true})
	}

	return &domain.JobResult{
		Success:   true,
		Processed: len(details),
		Details:   details,
	}, nil
}
