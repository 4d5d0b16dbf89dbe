package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// ConflictError is returned when a write carries a stale version token,
// meaning a concurrent writer got there first. The caller should re-read
// and retry.
type ConflictError struct {
	TaskID  string
	Version int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s was modified concurrently (stale version %d)", e.TaskID, e.Version)
}

// InvalidTransitionError is returned when a status change is not an edge in
// the lifecycle graph.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal status transition %s -> %s", e.TaskID, e.From, e.To)
}

// UnknownActionError is returned when a batch operation names an action the
// orchestrator does not support.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown batch action %q", e.Action)
}

// InvalidPayloadError is returned when a job payload is structurally broken:
// missing required fields or not valid JSON. Permanently malformed payloads
// are acknowledged, not retried.
type InvalidPayloadError struct {
	JobType string
	Reason  string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.JobType, e.Reason)
}

// UnknownJobTypeError is returned when no handler is registered for a job type.
type UnknownJobTypeError struct {
	JobType string
}

func (e *UnknownJobTypeError) Error() string {
	return fmt.Sprintf("no handler registered for job type %q", e.JobType)
}

// RateLimitExceededError is returned when a caller exceeds its request budget
// inside the current window.
type RateLimitExceededError struct {
	ClientID string
	Limit    int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for client %q: limit is %d", e.ClientID, e.Limit)
}
