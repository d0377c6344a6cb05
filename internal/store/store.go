// Package store defines the persistence contract the timer engine and query
// service depend on. Implementations: internal/postgres (production) and
// internal/memstore (tests, dev mode).
package store

import (
	"context"
	"time"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
)

// ListFilters narrows and pages a task listing. Nil fields are ignored.
type ListFilters struct {
	Status     *domain.Status
	Day        *time.Time // matches scheduled_date
	CategoryID *string
	Priority   *domain.Priority
	Limit      int // 0 means the default of 50
	Offset     int
}

// TaskStore is the persistence collaborator. Beyond plain CRUD it owns the
// task event ledger (append-only, ordered) and is responsible for closing
// the single-active-task race: UpdateTask must reject a transition to
// in_progress when the owner already has a different running task, returning
// *domain.AnotherTaskActiveError.
type TaskStore interface {
	CreateTask(ctx context.Context, t *domain.Task) error
	// TaskByID returns *domain.TaskNotFoundError when the id does not exist.
	TaskByID(ctx context.Context, id string) (*domain.Task, error)
	// TaskByIDForOwner returns *domain.TaskNotFoundError when the id does
	// not exist or belongs to a different owner.
	TaskByIDForOwner(ctx context.Context, id, ownerID string) (*domain.Task, error)
	// UpdateTask persists all mutable columns of t.
	UpdateTask(ctx context.Context, t *domain.Task) error
	RemoveTask(ctx context.Context, id string) error

	// ListTasks orders in_progress first, then scheduled_date ascending
	// (nulls last), then created_at descending.
	ListTasks(ctx context.Context, ownerID string, f ListFilters) ([]*domain.Task, error)
	// ActiveTasks returns every in_progress task of the owner. Under the
	// single-active invariant the slice has at most one element; callers
	// surface anything longer as a data-integrity violation.
	ActiveTasks(ctx context.Context, ownerID string) ([]*domain.Task, error)
	// TasksForDay returns tasks scheduled for day, started on day, or
	// currently in_progress; ordered in_progress first, then actual_start
	// descending (nulls last), then created_at descending.
	TasksForDay(ctx context.Context, ownerID string, day time.Time) ([]*domain.Task, error)
	// CountByStatus counts the owner's tasks per status, restricted to those
	// scheduled for or started on day.
	CountByStatus(ctx context.Context, ownerID string, day time.Time) (map[domain.Status]int, error)

	// AppendEvent writes a ledger entry. It never rejects based on ledger
	// content; transition legality is the engine's concern.
	AppendEvent(ctx context.Context, taskID string, et domain.EventType, at time.Time, metadata map[string]any) (*domain.TaskEvent, error)
	// Events returns the task's ledger ascending by timestamp, ties broken
	// by insertion order.
	Events(ctx context.Context, taskID string) ([]*domain.TaskEvent, error)
	LastEvent(ctx context.Context, taskID string) (*domain.TaskEvent, error)
}
