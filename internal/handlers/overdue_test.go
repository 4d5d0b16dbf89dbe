package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeheim/taskpulse/internal/domain"
	"github.com/codeheim/taskpulse/internal/handlers"
)

func overdueJob(t *testing.T, jobType string, payload any) *domain.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Job{ID: "job-1", Type: jobType, Payload: raw}
}

func TestOverdueHandlerMarks(t *testing.T) {
	mutator := &fakeMutator{
		markOverdueFn: func(id string) (*domain.Task, error) {
			return &domain.Task{ID: id, Status: domain.StatusOverdue}, nil
		},
	}
	h := handlers.NewOverdueHandler(mutator, testLogger())

	result, err := h.Handle(context.Background(), overdueJob(t, domain.JobMarkOverdue, domain.OverduePayload{TaskID: "t1"}))

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.StatusOverdue, result.NewStatus)
}

func TestOverdueHandlerToleratesDeletedTask(t *testing.T) {
	mutator := &fakeMutator{
		markOverdueFn: func(id string) (*domain.Task, error) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		},
	}
	h := handlers.NewOverdueHandler(mutator, testLogger())

	result, err := h.Handle(context.Background(), overdueJob(t, domain.JobMarkOverdue, domain.OverduePayload{TaskID: "t1"}))

	require.NoError(t, err, "a task deleted between scan and delivery settles the job")
	assert.False(t, result.Success)
}

func TestOverdueHandlerToleratesReactionedTask(t *testing.T) {
	mutator := &fakeMutator{
		markOverdueFn: func(id string) (*domain.Task, error) {
			return nil, &domain.InvalidTransitionError{
				TaskID: id,
				From:   domain.StatusCompleted,
				To:     domain.StatusOverdue,
			}
		},
	}
	h := handlers.NewOverdueHandler(mutator, testLogger())

	result, err := h.Handle(context.Background(), overdueJob(t, domain.JobMarkOverdue, domain.OverduePayload{TaskID: "t1"}))

	require.NoError(t, err, "a task completed after the scan settles the job")
	assert.False(t, result.Success)
}

func TestOverdueHandlerMissingTaskID(t *testing.T) {
	mutator := &fakeMutator{}
	h := handlers.NewOverdueHandler(mutator, testLogger())

	result, err := h.Handle(context.Background(), overdueJob(t, domain.JobMarkOverdue, domain.OverduePayload{}))

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, mutator.calls)
}

func TestOverdueHandlerInfraErrorPropagates(t *testing.T) {
	infraErr := errors.New("connection refused")
	mutator := &fakeMutator{
		markOverdueFn: func(id string) (*domain.Task, error) {
			return nil, infraErr
		},
	}
	h := handlers.NewOverdueHandler(mutator, testLogger())

	_, err := h.Handle(context.Background(), overdueJob(t, domain.JobMarkOverdue, domain.OverduePayload{TaskID: "t1"}))
	require.ErrorIs(t, err, infraErr)
}

func TestOverdueBatchHandlerAggregates(t *testing.T) {
	mutator := &fakeMutator{
		markOverdueFn: func(id string) (*domain.Task, error) {
			if id == "b" {
				return nil, &domain.TaskNotFoundError{TaskID: id}
			}
			return &domain.Task{ID: id, Status: domain.StatusOverdue}, nil
		},
	}
	h := handlers.NewOverdueBatchHandler(mutator, testLogger())

	result, err := h.Handle(context.Background(), overdueJob(t, domain.JobOverdueBatch, domain.OverdueBatchPayload{
		TaskIDs: []string{"a", "b", "c"},
	}))

	require.NoError(t, err)
	assert.True(t, result.Success, "the batch as a whole settles even with per-id failures")
	assert.Equal(t, 3, result.Processed)
	require.Len(t, result.Details, 3)
	assert.True(t, result.Details[0].Success)
	assert.False(t, result.Details[1].Success)
	assert.True(t, result.Details[2].Success, "ids after a failure are still processed")
}

func TestOverdueBatchHandlerMissingIDs(t *testing.T) {
	mutator := &fakeMutator{}
	h := handlers.NewOverdueBatchHandler(mutator, testLogger())

	result, err := h.Handle(context.Background(), overdueJob(t, domain.JobOverdueBatch, map[string]any{}))

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, mutator.calls)
}
