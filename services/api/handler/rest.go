// Package handler exposes the task orchestrator over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/codeheim/taskpulse/internal/domain"
	redisstore "github.com/codeheim/taskpulse/internal/redis"
	"github.com/codeheim/taskpulse/internal/service"
	"github.com/codeheim/taskpulse/services/api/middleware"
)

// Orchestrator is the slice of the task service the REST layer needs.
type Orchestrator interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	Update(ctx context.Context, id string, patch service.UpdatePatch) (*domain.Task, error)
	Remove(ctx context.Context, id string) error
	ListWithFilters(ctx context.Context, filter domain.Filter) (service.ListResult, error)
	GetStats(ctx context.Context) (domain.Stats, error)
	BatchProcess(ctx context.Context, taskIDs []string, action string) []service.BatchItemResult
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// REST handles HTTP requests for the task API.
type REST struct {
	svc      Orchestrator
	cache    redisstore.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewREST creates a new REST handler. cache may be nil to disable caching.
func NewREST(svc Orchestrator, cache redisstore.Cache, cacheTTL time.Duration, logger *slog.Logger) *REST {
	return &REST{svc: svc, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Routes mounts the task endpoints on r.
func (h *REST) Routes(r chi.Router) {
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks/stats", h.GetStats)
	r.Post("/tasks/batch", h.BatchProcess)
	r.Get("/tasks/{id}", h.GetTask)
	r.Patch("/tasks/{id}", h.UpdateTask)
	r.Delete("/tasks/{id}", h.DeleteTask)
}

// CreateTaskRequest is the JSON body for POST /api/v1/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Status      string     `json:"status" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED OVERDUE"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskRequest is the JSON body for PATCH /api/v1/tasks/{id}. Absent
// fields leave the task untouched.
type UpdateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=2000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED OVERDUE"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// BatchRequest is the JSON body for POST /api/v1/tasks/batch.
type BatchRequest struct {
	TaskIDs []string `json:"taskIds" validate:"required,min=1,max=100,dive,required"`
	Action  string   `json:"action" validate:"required"`
}

// BatchResponse aggregates per-item outcomes.
type BatchResponse struct {
	Processed int                       `json:"processed"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Results   []service.BatchItemResult `json:"results"`
}

// CreateTask handles POST /api/v1/tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.create_task")
	defer span.End()

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	in := service.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	if req.Status != "" {
		s := domain.Status(req.Status)
		in.Status = &s
	}
	if req.Priority != "" {
		p := domain.Priority(req.Priority)
		in.Priority = &p
	}
	if caller, ok := middleware.CallerFrom(ctx); ok {
		in.OwnerID = caller
	}

	task, err := h.svc.Create(ctx, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	span.SetAttributes(attribute.String("task.id", task.ID))

	h.invalidate(ctx, task.ID)
	h.logger.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("priority", string(task.Priority)),
	)
	writeJSON(w, http.StatusCreated, task)
}

// GetTask handles GET /api/v1/tasks/{id} with a read-through cache.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, "task:"+id); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(raw)
			return
		}
	}

	task, err := h.svc.Get(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if h.cache != nil {
		if raw, err := json.Marshal(task); err == nil {
			if err := h.cache.Set(ctx, "task:"+id, raw, h.cacheTTL); err != nil {
				h.logger.Debug("cache set failed", slog.String("error", err.Error()))
			}
		}
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasks handles GET /api/v1/tasks with optional status, priority, owner,
// page, and limit query parameters.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var filter domain.Filter
	if raw := q.Get("status"); raw != "" {
		s, err := domain.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &s
	}
	if raw := q.Get("priority"); raw != "" {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Priority = &p
	}
	filter.OwnerID = q.Get("owner")
	filter.Page = atoiDefault(q.Get("page"), 1)
	filter.Limit = atoiDefault(q.Get("limit"), 10)

	result, err := h.svc.ListWithFilters(ctx, filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetStats handles GET /api/v1/tasks/stats with a short-lived cache.
func (h *REST) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, "stats"); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(raw)
			return
		}
	}

	stats, err := h.svc.GetStats(ctx)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if h.cache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			_ = h.cache.Set(ctx, "stats", raw, h.cacheTTL)
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// UpdateTask handles PATCH /api/v1/tasks/{id}.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.update_task")
	defer span.End()
	id := chi.URLParam(r, "id")
	span.SetAttributes(attribute.String("task.id", id))

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	patch := service.UpdatePatch{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	if req.Status != nil {
		s := domain.Status(*req.Status)
		patch.Status = &s
	}
	if req.Priority != nil {
		p := domain.Priority(*req.Priority)
		patch.Priority = &p
	}

	task, err := h.svc.Update(ctx, id, patch)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.invalidate(ctx, id)
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/v1/tasks/{id}.
func (h *REST) DeleteTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if err := h.svc.Remove(ctx, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.invalidate(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// BatchProcess handles POST /api/v1/tasks/batch. The response is always 200:
// per-item failures live inside the results array, not in the HTTP status.
func (h *REST) BatchProcess(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("api").Start(r.Context(), "api.batch_process")
	defer span.End()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	span.SetAttributes(
		attribute.Int("batch.size", len(req.TaskIDs)),
		attribute.String("batch.action", req.Action),
	)

	results := h.svc.BatchProcess(ctx, req.TaskIDs, req.Action)

	resp := BatchResponse{Processed: len(results), Results: results}
	for i, res := range results {
		if res.Success {
			resp.Succeeded++
			h.invalidate(ctx, results[i].TaskID)
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz. The store is the hard dependency; a stats query
// doubles as the probe.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := h.svc.GetStats(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// invalidate drops the cached entries a mutation may have staled.
func (h *REST) invalidate(ctx context.Context, taskID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, "task:"+taskID); err != nil {
		h.logger.Debug("cache invalidation failed", slog.String("error", err.Error()))
	}
	if err := h.cache.Delete(ctx, "stats"); err != nil {
		h.logger.Debug("cache invalidation failed", slog.String("error", err.Error()))
	}
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (h *REST) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *domain.TaskNotFoundError
		conflict   *domain.ConflictError
		transition *domain.InvalidTransitionError
		action     *domain.UnknownActionError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &action):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// validationMessage flattens a validator error into a single readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "field '" + fe.Field() + "' failed validation: " + fe.Tag()
	}
	return "invalid request"
}

func atoiDefault(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
