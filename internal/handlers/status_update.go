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

// StatusUpdateHandler applies a status-update job by re-reading the target
// from the payload and calling the orchestrator's status-only mutation.
// Delivery is at-least-once, so the mutation it calls is idempotent: a task
// already in the target status is left alone.
type StatusUpdateHandler struct {
	tasks  TaskMutator
	logger *slog.Logger
}

// NewStatusUpdateHandler creates a StatusUpdateHandler.
func NewStatusUpdateHandler(tasks TaskMutator, logger *slog.Logger) *StatusUpdateHandler {
	return &StatusUpdateHandler{tasks: tasks, logger: logger}
}

func (h *StatusUpdateHandler) JobType() string { return domain.JobStatusUpdate }

func (h *StatusUpdateHandler) Handle(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "handler.status_update")
	defer span.End()

	var p domain.StatusUpdatePayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		span.SetStatus(codes.Error, "malformed payload")
		return &domain.JobResult{Success: false, Error: "invalid status-update payload"}, nil
	}
	if p.TaskID == "" || p.Status == "" {
		// Permanently malformed: retrying cannot grow the missing fields.
		span.SetStatus(codes.Error, "missing required fields")
		return &domain.JobResult{Success: false, Error: "missing required data"}, nil
	}
	if _, err := domain.ParseStatus(string(p.Status)); err != nil {
		span.SetStatus(codes.Error, "unknown status")
		return &domain.JobResult{Success: false, Error: err.Error()}, nil
	}

	span.SetAttributes(
		attribute.String("task.id", p.TaskID),
		attribute.String("task.status", string(p.Status)),
	)

	task, err := h.tasks.UpdateStatus(ctx, p.TaskID, p.Status)
	if err != nil {
		if settled(err) {
			h.logger.Warn("status update not applicable",
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
