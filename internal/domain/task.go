package domain

import "time"

// Status represents the lifecycle states of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Priority is the user-assigned importance of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work owned by exactly one user. ActualMinutes is a cache
// of the last ledger computation, refreshed on every timer transition; the
// event ledger remains the source of truth for elapsed time.
type Task struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	CategoryID       *string    `json:"category_id,omitempty"`
	Name             string     `json:"name"`
	Description      *string    `json:"description,omitempty"`
	Status           Status     `json:"status"`
	Priority         Priority   `json:"priority"`
	ScheduledDate    *time.Time `json:"scheduled_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty"`
	ActualStart      *time.Time `json:"actual_start,omitempty"`
	ActualEnd        *time.Time `json:"actual_end,omitempty"`
	ActualMinutes    *int       `json:"actual_minutes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EventType classifies the entries of a task's timer ledger.
type EventType string

const (
	EventStarted   EventType = "started"
	EventResumed   EventType = "resumed"
	EventPaused    EventType = "paused"
	EventCompleted EventType = "completed"
	EventCancelled EventType = "cancelled"
)

// OpensInterval reports whether the event starts a work interval.
func (e EventType) OpensInterval() bool {
	return e == EventStarted || e == EventResumed
}

// ClosesInterval reports whether the event ends a work interval.
func (e EventType) ClosesInterval() bool {
	return e == EventPaused || e == EventCompleted
}

// TaskEvent is an immutable, timestamped fact in a task's ledger. Events
// reference their task by id only; they are never updated or removed.
type TaskEvent struct {
	ID         string         `json:"id"`
	TaskID     string         `json:"task_id"`
	Type       EventType      `json:"event_type"`
	OccurredAt time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
