// Package postgres implements store.TaskStore on a pgx connection pool.
// The single-active-task rule is enforced here by a partial unique index,
// so concurrent starts race at the database and lose cleanly.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/store"
)

const activeIndexName = "tasks_one_active_per_owner"

type Store struct {
	pool *pgxpool.Pool
}

var _ store.TaskStore = (*Store)(nil)

// NewStore wraps a pgxpool with the TaskStore interface.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for collaborators that need raw queries,
// such as the reconciler.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

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

const taskColumns = `id, owner_id, category_id, name, description, status, priority,
       scheduled_date, actual_start, actual_end, estimated_minutes, actual_minutes,
       created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks
			(id, owner_id, category_id, name, description, status, priority,
			 scheduled_date, actual_start, actual_end, estimated_minutes, actual_minutes,
			 created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		t.ID, t.OwnerID, t.CategoryID, t.Name, t.Description,
		string(t.Status), string(t.Priority),
		t.ScheduledDate, t.ActualStart, t.ActualEnd,
		t.EstimatedMinutes, t.ActualMinutes,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if active := s.asActiveConflict(ctx, err, t.OwnerID); active != nil {
			return active
		}
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) TaskByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1
	`, id)
	return scanTask(row, id)
}

func (s *Store) TaskByIDForOwner(ctx context.Context, id, ownerID string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	return scanTask(row, id)
}

func (s *Store) UpdateTask(ctx context.Context, t *domain.Task) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tasks
		SET category_id = $1, name = $2, description = $3, status = $4, priority = $5,
		    scheduled_date = $6, actual_start = $7, actual_end = $8,
		    estimated_minutes = $9, actual_minutes = $10, updated_at = $11
		WHERE id = $12
	`,
		t.CategoryID, t.Name, t.Description, string(t.Status), string(t.Priority),
		t.ScheduledDate, t.ActualStart, t.ActualEnd,
		t.EstimatedMinutes, t.ActualMinutes, t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		if active := s.asActiveConflict(ctx, err, t.OwnerID); active != nil {
			return active
		}
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: t.ID}
	}
	return nil
}

func (s *Store) RemoveTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string, f store.ListFilters) ([]*domain.Task, error) {
	where := []string{"owner_id = $1"}
	args := []any{ownerID}

	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Day != nil {
		args = append(args, *f.Day)
		where = append(where, fmt.Sprintf("scheduled_date = $%d::date", len(args)))
	}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		where = append(where, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if f.Priority != nil {
		args = append(args, string(*f.Priority))
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	limitArg := len(args)
	args = append(args, f.Offset)
	offsetArg := len(args)

	query := fmt.Sprintf(`
		SELECT `+taskColumns+`
		FROM tasks
		WHERE %s
		ORDER BY
			CASE WHEN status = 'in_progress' THEN 0 ELSE 1 END,
			scheduled_date ASC NULLS LAST,
			created_at DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(where, " AND "), limitArg, offsetArg)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks for owner %s: %w", ownerID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) ActiveTasks(ctx context.Context, ownerID string) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = $1 AND status = 'in_progress'
		ORDER BY actual_start ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("active tasks for owner %s: %w", ownerID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) TasksForDay(ctx context.Context, ownerID string, day time.Time) ([]*domain.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE owner_id = $1
		  AND (scheduled_date = $2::date
		       OR actual_start::date = $2::date
		       OR status = 'in_progress')
		ORDER BY
			CASE WHEN status = 'in_progress' THEN 0 ELSE 1 END,
			actual_start DESC NULLS LAST,
			created_at DESC
	`, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("tasks for day %s: %w", day.Format("2006-01-02"), err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) CountByStatus(ctx context.Context, ownerID string, day time.Time) (map[domain.Status]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM tasks
		WHERE owner_id = $1
		  AND (scheduled_date = $2::date OR actual_start::date = $2::date)
		GROUP BY status
	`, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	defer rows.Close()

	counts := map[domain.Status]int{
		domain.StatusPending:    0,
		domain.StatusInProgress: 0,
		domain.StatusCompleted:  0,
		domain.StatusCancelled:  0,
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, taskID string, et domain.EventType, at time.Time, metadata map[string]any) (*domain.TaskEvent, error) {
	ev := &domain.TaskEvent{
		TaskID:     taskID,
		Type:       et,
		OccurredAt: at,
		Metadata:   metadata,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO task_events (task_id, event_type, occurred_at, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, taskID, string(et), at, metadata).Scan(&ev.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, &domain.TaskNotFoundError{TaskID: taskID}
		}
		return nil, fmt.Errorf("append %s event for task %s: %w", et, taskID, err)
	}
	return ev, nil
}

func (s *Store) Events(ctx context.Context, taskID string) ([]*domain.TaskEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, event_type, occurred_at, metadata
		FROM task_events
		WHERE task_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("events for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var events []*domain.TaskEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) LastEvent(ctx context.Context, taskID string) (*domain.TaskEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, task_id, event_type, occurred_at, metadata
		FROM task_events
		WHERE task_id = $1
		ORDER BY occurred_at DESC, seq DESC
		LIMIT 1
	`, taskID)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ev, nil
}

// asActiveConflict recognizes a unique violation on the partial active index
// and converts it into the domain error, attaching the task that holds the
// slot when it can still be found.
func (s *Store) asActiveConflict(ctx context.Context, err error, ownerID string) *domain.AnotherTaskActiveError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" || pgErr.ConstraintName != activeIndexName {
		return nil
	}
	conflict := &domain.AnotherTaskActiveError{}
	if active, lookupErr := s.ActiveTasks(ctx, ownerID); lookupErr == nil && len(active) > 0 {
		conflict.ActiveID = active[0].ID
		conflict.ActiveName = active[0].Name
	}
	return conflict
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func collectTasks(rows pgx.Rows) ([]*domain.Task, error) {
	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows, "")
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}, id string) (*domain.Task, error) {
	var t domain.Task
	var statusStr, priorityStr string
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.CategoryID, &t.Name, &t.Description,
		&statusStr, &priorityStr,
		&t.ScheduledDate, &t.ActualStart, &t.ActualEnd,
		&t.EstimatedMinutes, &t.ActualMinutes,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Status = domain.Status(statusStr)
	t.Priority = domain.Priority(priorityStr)
	return &t, nil
}

func scanEvent(row interface {
	Scan(...any) error
}) (*domain.TaskEvent, error) {
	var ev domain.TaskEvent
	var typeStr string
	err := row.Scan(&ev.ID, &ev.TaskID, &typeStr, &ev.OccurredAt, &ev.Metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task event: %w", err)
	}
	ev.Type = domain.EventType(typeStr)
	return &ev, nil
}
