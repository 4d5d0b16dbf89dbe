package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeheim/taskpulse/internal/domain"
)

// memStore is an in-memory TaskStore with the same compare-and-set semantics
// as the postgres implementation.
type memStore struct {
	tasks     map[string]*domain.Task
	createErr error
	// conflictNext forces the next N Update calls to fail with ConflictError
	// while still applying a concurrent version bump, like a racing writer.
	conflictNext int
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*domain.Task)}
}

func (m *memStore) Create(ctx context.Context, task *domain.Task) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	cp := *task
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, task *domain.Task) error {
	current, ok := m.tasks[task.ID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	if m.conflictNext > 0 {
		m.conflictNext--
		current.Version++
		return &domain.ConflictError{TaskID: task.ID, Version: task.Version}
	}
	if current.Version != task.Version {
		return &domain.ConflictError{TaskID: task.ID, Version: task.Version}
	}
	cp := *task
	cp.Version++
	cp.UpdatedAt = time.Now().UTC()
	m.tasks[task.ID] = &cp
	task.Version = cp.Version
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) List(ctx context.Context, filter domain.Filter) ([]*domain.Task, int, error) {
	out := make([]*domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (m *memStore) Stats(ctx context.Context) (domain.Stats, error) {
	return domain.Stats{Total: len(m.tasks)}, nil
}

func (m *memStore) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	return nil, nil
}

type capturedJob struct {
	jobType string
	payload any
}

type memQueue struct {
	jobs       []capturedJob
	enqueueErr error
}

func (m *memQueue) Enqueue(ctx context.Context, jobType string, payload any) (string, error) {
	if m.enqueueErr != nil {
		return "", m.enqueueErr
	}
	m.jobs = append(m.jobs, capturedJob{jobType: jobType, payload: payload})
	return "job-1", nil
}

func (m *memQueue) DeadLetter(ctx context.Context, key string, value []byte) error { return nil }
func (m *memQueue) Close() error                                                   { return nil }

func newTestService(store *memStore, q *memQueue) *TaskService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTaskService(store, q, logger)
}

func seedTask(store *memStore, id string, status domain.Status) {
	store.tasks[id] = &domain.Task{
		ID:       id,
		Title:    "seeded",
		Status:   status,
		Priority: domain.PriorityMedium,
		Version:  1,
	}
}

func TestCreateDefaultsAndEnqueue(t *testing.T) {
	store := newMemStore()
	q := &memQueue{}
	svc := newTestService(store, q)

	task, err := svc.Create(context.Background(), CreateInput{Title: "write report"})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, domain.StatusPending, task.Status)
	assert.Equal(t, domain.PriorityMedium, task.Priority)
	assert.Equal(t, int64(1), task.Version)

	require.Len(t, q.jobs, 1, "create enqueues exactly one status-update job")
	assert.Equal(t, domain.JobStatusUpdate, q.jobs[0].jobType)
	p := q.jobs[0].payload.(domain.StatusUpdatePayload)
	assert.Equal(t, task.ID, p.TaskID)
	assert.Equal(t, domain.StatusPending, p.Status)
}

func TestCreateStoreFailureDoesNotEnqueue(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("connection refused")
	q := &memQueue{}
	svc := newTestService(store, q)

	_, err := svc.Create(context.Background(), CreateInput{Title: "x"})
	require.Error(t, err)
	assert.Empty(t, q.jobs, "nothing may be enqueued for a task that was never persisted")
}

func TestCreateSurvivesEnqueueFailure(t *testing.T) {
	store := newMemStore()
	q := &memQueue{enqueueErr: errors.New("broker down")}
	svc := newTestService(store, q)

	task, err := svc.Create(context.Background(), CreateInput{Title: "x"})
	require.NoError(t, err, "the store write is authoritative; a dead broker does not undo it")
	assert.Contains(t, store.tasks, task.ID)
}

func TestUpdateStatusChangeEnqueuesExactlyOne(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	q := &memQueue{}
	svc := newTestService(store, q)

	inProgress := domain.StatusInProgress
	task, err := svc.Update(context.Background(), "t1", UpdatePatch{Status: &inProgress})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, task.Status)
	assert.Equal(t, int64(2), task.Version)

	require.Len(t, q.jobs, 1)
	p := q.jobs[0].payload.(domain.StatusUpdatePayload)
	assert.Equal(t, domain.StatusInProgress, p.Status)
}

func TestUpdateWithoutStatusChangeNeverEnqueues(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	q := &memQueue{}
	svc := newTestService(store, q)

	title := "renamed"
	_, err := svc.Update(context.Background(), "t1", UpdatePatch{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, q.jobs, "a patch that leaves status untouched enqueues nothing")

	// Patching status to its current value is a no-op, not a transition.
	pending := domain.StatusPending
	_, err = svc.Update(context.Background(), "t1", UpdatePatch{Status: &pending})
	require.NoError(t, err)
	assert.Empty(t, q.jobs)
}

func TestUpdateInvalidTransitionRejected(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusCompleted)
	q := &memQueue{}
	svc := newTestService(store, q)

	inProgress := domain.StatusInProgress
	_, err := svc.Update(context.Background(), "t1", UpdatePatch{Status: &inProgress})

	var transition *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Empty(t, q.jobs)
	assert.Equal(t, domain.StatusCompleted, store.tasks["t1"].Status, "rejected patch must not write")
}

func TestUpdateNotFound(t *testing.T) {
	svc := newTestService(newMemStore(), &memQueue{})

	_, err := svc.Update(context.Background(), "ghost", UpdatePatch{})
	var notFound *domain.TaskNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestUpdateStaleVersionSurfacesConflict(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	store.conflictNext = 1
	q := &memQueue{}
	svc := newTestService(store, q)

	title := "renamed"
	_, err := svc.Update(context.Background(), "t1", UpdatePatch{Title: &title})

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict, "the REST caller decides whether to retry, not Update")
	assert.Empty(t, q.jobs)
}

func TestRemoveEnqueuesNothing(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	q := &memQueue{}
	svc := newTestService(store, q)

	require.NoError(t, svc.Remove(context.Background(), "t1"))
	assert.Empty(t, q.jobs)
	assert.NotContains(t, store.tasks, "t1")
}

func TestListWithFiltersDefaults(t *testing.T) {
	svc := newTestService(newMemStore(), &memQueue{})

	result, err := svc.ListWithFilters(context.Background(), domain.Filter{Page: 0, Limit: -5})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 10, result.Limit)
}

func TestBatchProcessIsolatesFailures(t *testing.T) {
	store := newMemStore()
	seedTask(store, "a", domain.StatusPending)
	seedTask(store, "c", domain.StatusPending)
	q := &memQueue{}
	svc := newTestService(store, q)

	results := svc.BatchProcess(context.Background(), []string{"a", "b", "c"}, "complete")

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success, "missing id fails its own item only")
	assert.Contains(t, results[1].Error, "b")
	assert.True(t, results[2].Success, "items after a failure are still processed")

	assert.Equal(t, domain.StatusCompleted, store.tasks["a"].Status)
	assert.Equal(t, domain.StatusCompleted, store.tasks["c"].Status)
	assert.Len(t, q.jobs, 2, "each completed item enqueues its status-update job")
}

func TestBatchProcessDelete(t *testing.T) {
	store := newMemStore()
	seedTask(store, "a", domain.StatusPending)
	q := &memQueue{}
	svc := newTestService(store, q)

	results := svc.BatchProcess(context.Background(), []string{"a"}, "delete")

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.NotContains(t, store.tasks, "a")
	assert.Empty(t, q.jobs)
}

func TestBatchProcessUnknownAction(t *testing.T) {
	store := newMemStore()
	seedTask(store, "a", domain.StatusPending)
	svc := newTestService(store, &memQueue{})

	results := svc.BatchProcess(context.Background(), []string{"a"}, "archive")

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "archive")
	assert.Equal(t, domain.StatusPending, store.tasks["a"].Status, "unknown action must not mutate")
}

func TestUpdateStatusIdempotentNoOp(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusCompleted)
	q := &memQueue{}
	svc := newTestService(store, q)

	task, err := svc.UpdateStatus(context.Background(), "t1", domain.StatusCompleted)
	require.NoError(t, err, "redelivery of an applied job must be a no-op")
	assert.Equal(t, int64(1), task.Version, "no write happens for a no-op")
	assert.Empty(t, q.jobs, "the status-only mutation never enqueues follow-up jobs")
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusCompleted)
	svc := newTestService(store, &memQueue{})

	_, err := svc.UpdateStatus(context.Background(), "t1", domain.StatusInProgress)
	var transition *domain.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
}

func TestUpdateStatusRetriesThroughConflict(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	store.conflictNext = 2
	q := &memQueue{}
	svc := newTestService(store, q)

	task, err := svc.UpdateStatus(context.Background(), "t1", domain.StatusInProgress)
	require.NoError(t, err, "losing the race twice is within the retry budget")
	assert.Equal(t, domain.StatusInProgress, task.Status)
	assert.Empty(t, q.jobs)
}

func TestUpdateStatusGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	store.conflictNext = 10
	svc := newTestService(store, &memQueue{})

	_, err := svc.UpdateStatus(context.Background(), "t1", domain.StatusInProgress)
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestMarkOverdue(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusPending)
	q := &memQueue{}
	svc := newTestService(store, q)

	task, err := svc.MarkOverdue(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOverdue, task.Status)
	assert.Empty(t, q.jobs)
}

func TestMarkOverdueAlreadyOverdueIsNoOp(t *testing.T) {
	store := newMemStore()
	seedTask(store, "t1", domain.StatusOverdue)
	svc := newTestService(store, &memQueue{})

	task, err := svc.MarkOverdue(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), task.Version)
}

func TestMarkOverdueRejectsNonPending(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusInProgress, domain.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			store := newMemStore()
			seedTask(store, "t1", status)
			svc := newTestService(store, &memQueue{})

			_, err := svc.MarkOverdue(context.Background(), "t1")
			var transition *domain.InvalidTransitionError
			require.ErrorAs(t, err, &transition)
			assert.Equal(t, status, store.tasks["t1"].Status)
		})
	}
}

func TestMarkOverdueDeletedTask(t *testing.T) {
	svc := newTestService(newMemStore(), &memQueue{})

	_, err := svc.MarkOverdue(context.Background(), "ghost")
	var notFound *domain.TaskNotFoundError
	require.ErrorAs(t, err, &notFound)
}
