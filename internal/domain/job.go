package domain

import (
	"encoding/json"
	"time"
)

// Job type tags. The worker's registry is closed over this set; anything else
// is acknowledged with an "unknown job type" result and never retried.
const (
	JobStatusUpdate = "task-status-update"
	JobMarkOverdue  = "process-overdue-task"
	JobOverdueBatch = "overdue-tasks-notification"
)

// Job is the envelope published to the queue. Payloads must be
// self-sufficient: delivery may happen in another process, after arbitrary
// delay, and more than once.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// StatusUpdatePayload carries a task-status-update job.
type StatusUpdatePayload struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
}

// OverduePayload carries a process-overdue-task job.
type OverduePayload struct {
	TaskID string `json:"task_id"`
}

// OverdueBatchPayload carries an overdue-tasks-notification job.
type OverdueBatchPayload struct {
	TaskIDs []string `json:"task_ids"`
}

// ItemResult is the outcome for one task id inside a batch-style operation.
type ItemResult struct {
	TaskID  string `json:"taskId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JobResult is what a handler reports back for one delivery.
// Success=false with a nil handler error means a business failure: the job is
// acknowledged and never retried, because redelivery cannot fix it.
type JobResult struct {
	Success   bool         `json:"success"`
	TaskID    string       `json:"taskId,omitempty"`
	NewStatus Status       `json:"newStatus,omitempty"`
	Processed int          `json:"processed,omitempty"`
	Details   []ItemResult `json:"details,omitempty"`
	Error     string       `json:"error,omitempty"`
}
