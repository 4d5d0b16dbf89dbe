package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/codeheim/taskpulse/internal/domain"
)

// TaskMutator is the slice of the orchestrator that job handlers use. Only
// the narrow status mutations are exposed; handlers never enqueue follow-up
// jobs through it.
type TaskMutator interface {
	UpdateStatus(ctx context.Context, id string, status domain.Status) (*domain.Task, error)
	MarkOverdue(ctx context.Context, id string) (*domain.Task, error)
}

// Handler processes jobs of a specific type.
//
// A (*JobResult, nil) return, even with Success=false, means the delivery
// is settled: the worker acknowledges it and the broker never redelivers.
// A non-nil error means infrastructure trouble; the worker leaves the offset
// uncommitted so the broker's at-least-once redelivery applies.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) (*domain.JobResult, error)
	JobType() string
}

// Registry maps job types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Safe to call concurrently.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.JobType()] = h
}

// Get returns the handler for the given job type.
// Returns UnknownJobTypeError if not registered.
func (r *Registry) Get(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, &domain.UnknownJobTypeError{JobType: jobType}
	}
	return h, nil
}

// Types returns the registered job types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// settled reports whether err is a business failure that redelivery cannot
// fix: the job should be acknowledged with a failure result instead of
// retried.
func settled(err error) bool {
	var (
		notFound   *domain.TaskNotFoundError
		transition *domain.InvalidTransitionError
		payload    *domain.InvalidPayloadError
	)
	return errors.As(err, &notFound) || errors.As(err, &transition) || errors.As(err, &payload)
}
