package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeheim/taskpulse/internal/domain"
)

// TaskStore abstracts all database access for tasks.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// Update is a compare-and-set on the task's version: the write succeeds
	// only if the stored version matches task.Version, and bumps it by one.
	// A stale version yields a ConflictError.
	Update(ctx context.Context, task *domain.Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.Filter) ([]*domain.Task, int, error)
	Stats(ctx context.Context) (domain.Stats, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error)
}

type store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgxpool with the TaskStore interface.
func NewStore(pool *pgxpool.Pool) TaskStore {
	return &store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

const taskColumns = `id, title, description, status, priority, due_date, owner_id, version, created_at, updated_at`

func (s *store) Create(ctx context.Context, task *domain.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks
			(id, title, description, status, priority, due_date, owner_id, version, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		task.ID, task.Title, task.Description, string(task.Status),
		string(task.Priority), task.DueDate, task.OwnerID, task.Version,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (s *store) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id)
	return scanTask(id, row)
}

func (s *store) Update(ctx context.Context, task *domain.Task) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4,
		    due_date = $5, owner_id = $6, version = version + 1, updated_at = $7
		WHERE id = $8 AND version = $9
	`,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		task.DueDate, task.OwnerID, now,
		task.ID, task.Version,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "gone" from "someone else got there first".
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, task.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("probe task %s: %w", task.ID, err)
		}
		if !exists {
			return &domain.TaskNotFoundError{TaskID: task.ID}
		}
		return &domain.ConflictError{TaskID: task.ID, Version: task.Version}
	}
	task.Version++
	task.UpdatedAt = now
	return nil
}

func (s *store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (s *store) List(ctx context.Context, filter domain.Filter) ([]*domain.Task, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != nil {
		where = append(where, "status = "+arg(string(*filter.Status)))
	}
	if filter.Priority != nil {
		where = append(where, "priority = "+arg(string(*filter.Priority)))
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = "+arg(filter.OwnerID))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	// count(*) OVER() repeats the total matching rows on every row, which
	// saves a second round trip for the count query.
	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total
		FROM tasks
		%s
		ORDER BY created_at DESC
		LIMIT %s OFFSET %s
	`, taskColumns, clause, arg(limit), arg(offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var (
		tasks []*domain.Task
		total int
	)
	for rows.Next() {
		var (
			task     domain.Task
			status   string
			priority string
		)
		if err := rows.Scan(
			&task.ID, &task.Title, &task.Description, &status, &priority,
			&task.DueDate, &task.OwnerID, &task.Version,
			&task.CreatedAt, &task.UpdatedAt, &total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		task.Status = domain.Status(status)
		task.Priority = domain.Priority(priority)
		tasks = append(tasks, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(tasks) == 0 {
		// Empty page past the end: the window function never ran, so fetch
		// the total separately.
		countQuery := "SELECT count(*) FROM tasks " + clause
		if err := s.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count tasks: %w", err)
		}
	}
	return tasks, total, nil
}

func (s *store) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'COMPLETED'),
			count(*) FILTER (WHERE status = 'IN_PROGRESS'),
			count(*) FILTER (WHERE status = 'PENDING'),
			count(*) FILTER (WHERE priority = 'HIGH')
		FROM tasks
	`).Scan(&st.Total, &st.Completed, &st.InProgress, &st.Pending, &st.HighPriority)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("task stats: %w", err)
	}
	return st, nil
}

func (s *store) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE due_date < $1 AND status = 'PENDING'
		ORDER BY due_date ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask("", rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// scanTask reads a task row from any pgx row type.
func scanTask(id string, row interface {
	Scan(...any) error
}) (*domain.Task, error) {
	var (
		task     domain.Task
		status   string
		priority string
	)
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &status, &priority,
		&task.DueDate, &task.OwnerID, &task.Version,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.Status(status)
	task.Priority = domain.Priority(priority)
	return &task, nil
}
