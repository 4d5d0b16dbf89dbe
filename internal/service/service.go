// Package service implements the task orchestrator: the domain-level API that
// mutates the task store and feeds status-relevant changes into the job queue.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeheim/taskpulse/internal/domain"
	"github.com/codeheim/taskpulse/internal/postgres"
	"github.com/codeheim/taskpulse/internal/queue"
	"github.com/codeheim/taskpulse/pkg/telemetry"
)

// casAttempts bounds the re-read/retry loop used by the job-handler paths
// when a compare-and-set write loses to a concurrent writer.
const casAttempts = 3

// TaskService orchestrates task mutations. Writes go to the store first; job
// enqueues are best-effort and never roll back a committed mutation.
type TaskService struct {
	store  postgres.TaskStore
	queue  queue.JobQueue
	logger *slog.Logger
}

// NewTaskService constructs a TaskService.
func NewTaskService(store postgres.TaskStore, q queue.JobQueue, logger *slog.Logger) *TaskService {
	return &TaskService{store: store, queue: q, logger: logger}
}

// CreateInput carries the fields for a new task. Status and Priority fall
// back to PENDING / MEDIUM when nil.
type CreateInput struct {
	Title       string
	Description string
	Status      *domain.Status
	Priority    *domain.Priority
	DueDate     *time.Time
	OwnerID     string
}

// UpdatePatch carries partial updates; nil fields are left untouched.
type UpdatePatch struct {
	Title       *string
	Description *string
	Status      *domain.Status
	Priority    *domain.Priority
	DueDate     *time.Time
}

// ListResult is the page-shaped response of ListWithFilters.
type ListResult struct {
	Data  []*domain.Task `json:"data"`
	Count int            `json:"count"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// BatchItemResult is the outcome for one task id inside BatchProcess.
type BatchItemResult struct {
	TaskID  string `json:"taskId"`
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Create validates and persists a new task, then enqueues a status-update job
// carrying its initial status. The store write is authoritative: if it fails
// the call fails; if only the enqueue fails, the task is still created and the
// failure is logged.
func (s *TaskService) Create(ctx context.Context, in CreateInput) (*domain.Task, error) {
	now := time.Now().UTC()
	task := &domain.Task{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Description: in.Description,
		Status:      domain.StatusPending,
		Priority:    domain.PriorityMedium,
		DueDate:     in.DueDate,
		OwnerID:     in.OwnerID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Status != nil {
		task.Status = *in.Status
	}
	if in.Priority != nil {
		task.Priority = *in.Priority
	}

	if err := s.store.Create(ctx, task); err != nil {
		return nil, err
	}

	telemetry.APITasksCreated.WithLabelValues(string(task.Priority)).Inc()
	s.enqueueStatusUpdate(ctx, task.ID, task.Status)
	return task, nil
}

// Get loads a single task.
func (s *TaskService) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.store.GetByID(ctx, id)
}

// Update applies a patch to a task. Exactly one status-update job is enqueued
// if and only if the patch changed the status; patches that leave status
// untouched never enqueue. A stale read surfaces as a ConflictError for the
// caller to retry.
func (s *TaskService) Update(ctx context.Context, id string, patch UpdatePatch) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	original := task.Status

	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.Status != nil && *patch.Status != original {
		if !original.CanTransitionTo(*patch.Status) {
			return nil, &domain.InvalidTransitionError{TaskID: id, From: original, To: *patch.Status}
		}
		task.Status = *patch.Status
	}

	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}

	if task.Status != original {
		s.enqueueStatusUpdate(ctx, task.ID, task.Status)
	}
	return task, nil
}

// Remove deletes a task. Deletion enqueues no job.
func (s *TaskService) Remove(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// ListWithFilters returns one page of tasks plus the total match count.
// Page is 1-indexed; limit defaults to 10.
func (s *TaskService) ListWithFilters(ctx context.Context, filter domain.Filter) (ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	tasks, count, err := s.store.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Data: tasks, Count: count, Page: filter.Page, Limit: filter.Limit}, nil
}

// GetStats returns aggregate counts computed in the store.
func (s *TaskService) GetStats(ctx context.Context) (domain.Stats, error) {
	return s.store.Stats(ctx)
}

// BatchProcess applies one action to many task ids. Each id is processed
// independently: a NotFound, conflict, or unknown action on one id is caught
// and recorded in its result without aborting the rest.
func (s *TaskService) BatchProcess(ctx context.Context, taskIDs []string, action string) []BatchItemResult {
	results := make([]BatchItemResult, 0, len(taskIDs))
	for _, id := range taskIDs {
		res := BatchItemResult{TaskID: id}

		var err error
		switch action {
		case "complete":
			completed := domain.StatusCompleted
			var task *domain.Task
			task, err = s.Update(ctx, id, UpdatePatch{Status: &completed})
			if err == nil {
				res.Result = task
			}
		case "delete":
			err = s.Remove(ctx, id)
			if err == nil {
				res.Result = map[string]string{"message": "Deleted"}
			}
		default:
			err = &domain.UnknownActionError{Action: action}
		}

		if err != nil {
			res.Error = err.Error()
			s.logger.Warn("batch item failed",
				slog.String("task_id", id),
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		} else {
			res.Success = true
		}
		results = append(results, res)
	}
	return results
}

// UpdateStatus is the narrow status-only mutation used by job handlers. It
// never enqueues a follow-up job (that would loop the pipeline back into
// itself) and it is idempotent: a task already in the target status is
// returned unchanged, so redeliveries of the same job are no-ops.
func (s *TaskService) UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Task, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		task, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status == status {
			return task, nil
		}
		if !task.Status.CanTransitionTo(status) {
			return nil, &domain.InvalidTransitionError{TaskID: id, From: task.Status, To: status}
		}
		task.Status = status

		err = s.store.Update(ctx, task)
		if err == nil {
			return task, nil
		}
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		// Lost the race; re-read and re-apply against the fresh version.
	}
	return nil, &domain.ConflictError{TaskID: id}
}

// MarkOverdue flags a PENDING task as OVERDUE. Tasks deleted between scan and
// handling surface as TaskNotFoundError, which callers in the job path treat
// as benign. A task already OVERDUE is a no-op; any other status means the
// task was re-actioned after the scan and the flag no longer applies.
func (s *TaskService) MarkOverdue(ctx context.Context, id string) (*domain.Task, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		task, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status == domain.StatusOverdue {
			return task, nil
		}
		if task.Status != domain.StatusPending {
			return nil, &domain.InvalidTransitionError{TaskID: id, From: task.Status, To: domain.StatusOverdue}
		}
		task.Status = domain.StatusOverdue

		err = s.store.Update(ctx, task)
		if err == nil {
			return task, nil
		}
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
	}
	return nil, &domain.ConflictError{TaskID: id}
}

// enqueueStatusUpdate publishes a status-update job. The triggering mutation
// has already committed, so a queue failure is logged and counted but never
// propagated.
func (s *TaskService) enqueueStatusUpdate(ctx context.Context, taskID string, status domain.Status) {
	jobID, err := s.queue.Enqueue(ctx, domain.JobStatusUpdate, domain.StatusUpdatePayload{
		TaskID: taskID,
		Status: status,
	})
	if err != nil {
		telemetry.APIJobsEnqueued.WithLabelValues(domain.JobStatusUpdate, "error").Inc()
		s.logger.Error("job enqueue failed; task mutation already committed",
			slog.String("task_id", taskID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
		return
	}
	telemetry.APIJobsEnqueued.WithLabelValues(domain.JobStatusUpdate, "ok").Inc()
	s.logger.Debug("status-update job enqueued",
		slog.String("task_id", taskID),
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)
}
