package handlers_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeheim/taskpulse/internal/domain"
	"github.com/codeheim/taskpulse/internal/handlers"
)

type stubHandler struct {
	jobType string
}

func (s *stubHandler) JobType() string { return s.jobType }

func (s *stubHandler) Handle(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	return &domain.JobResult{Success: true}, nil
}

func TestRegistryGet(t *testing.T) {
	reg := handlers.NewRegistry()
	h := &stubHandler{jobType: domain.JobStatusUpdate}
	reg.Register(h)

	got, err := reg.Get(domain.JobStatusUpdate)
	require.NoError(t, err)
	assert.Same(t, handlers.Handler(h), got)
}

func TestRegistryUnknownType(t *testing.T) {
	reg := handlers.NewRegistry()

	_, err := reg.Get("no-such-type")
	var unknown *domain.UnknownJobTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "no-such-type", unknown.JobType)
}

func TestRegistryTypes(t *testing.T) {
	reg := handlers.NewRegistry()
	reg.Register(&stubHandler{jobType: domain.JobStatusUpdate})
	reg.Register(&stubHandler{jobType: domain.JobMarkOverdue})

	assert.ElementsMatch(t, []string{domain.JobStatusUpdate, domain.JobMarkOverdue}, reg.Types())
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	reg := handlers.NewRegistry()
	first := &stubHandler{jobType: domain.JobStatusUpdate}
	second := &stubHandler{jobType: domain.JobStatusUpdate}
	reg.Register(first)
	reg.Register(second)

	got, err := reg.Get(domain.JobStatusUpdate)
	require.NoError(t, err)
	assert.Same(t, handlers.Handler(second), got)
	assert.Len(t, reg.Types(), 1)
}
