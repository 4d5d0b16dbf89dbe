package domain

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusOverdue    Status = "OVERDUE"
)

// transitions is the closed set of legal status moves. COMPLETED has no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusCompleted, StatusOverdue},
	StatusInProgress: {StatusCompleted},
	StatusOverdue:    {StatusInProgress, StatusCompleted},
	StatusCompleted:  {},
}

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// CanTransitionTo reports whether moving from s to next is a legal edge in
// the lifecycle graph. A transition to the current status is not an edge;
// callers treat it as an idempotent no-op instead.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStatus validates a raw string against the known statuses.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority validates a raw string against the known priorities.
func ParsePriority(raw string) (Priority, error) {
	switch p := Priority(raw); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", raw)
}

// Task is the core domain entity: a unit of work with a status lifecycle.
// Version is the optimistic-concurrency token; every successful store write
// increments it, and writers carrying a stale version are rejected.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	OwnerID     string     `json:"owner_id,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Stats aggregates task counts across the whole store.
type Stats struct {
	Total        int `json:"total"`
	Completed    int `json:"completed"`
	InProgress   int `json:"inProgress"`
	Pending      int `json:"pending"`
	HighPriority int `json:"highPriority"`
}

// Filter selects tasks for listing. Page is 1-indexed.
type Filter struct {
	Status   *Status
	Priority *Priority
	OwnerID  string
	Page     int
	Limit    int
}
