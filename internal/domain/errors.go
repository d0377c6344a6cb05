package domain

import (
	"errors"
	"fmt"
)

// Stable error codes consumed by the presentation layer. Every recoverable
// timer error maps 1:1 to one of these; storage failures are not part of the
// taxonomy and propagate unwrapped.
const (
	CodeTaskNotFound      = "TASK_NOT_FOUND"
	CodeTaskClosed        = "TASK_CLOSED"
	CodeAlreadyInProgress = "ALREADY_IN_PROGRESS"
	CodeAnotherTaskActive = "ANOTHER_TASK_ACTIVE"
	CodeNotInProgress     = "NOT_IN_PROGRESS"
	CodeAlreadyCompleted  = "ALREADY_COMPLETED"
	CodeTaskCancelled     = "TASK_CANCELLED"
	CodeTaskInProgress    = "TASK_IN_PROGRESS"
)

// Coder is implemented by every caller-facing task error.
type Coder interface {
	error
	Code() string
}

// ErrorCode extracts the stable code from err, walking wrapped errors.
// ok is false for infrastructure errors that carry no code.
func ErrorCode(err error) (code string, ok bool) {
	var c Coder
	if errors.As(err, &c) {
		return c.Code(), true
	}
	return "", false
}

// TaskNotFoundError is returned when a task id does not exist, is owned by a
// different user, or when an operation that resolves the active task finds
// none. A zero TaskID means the latter.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	if e.TaskID == "" {
		return "no active task"
	}
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

func (e *TaskNotFoundError) Code() string { return CodeTaskNotFound }

// TaskClosedError is returned when a mutation targets a completed or
// cancelled task.
type TaskClosedError struct {
	TaskID string
	Status Status
}

func (e *TaskClosedError) Error() string {
	return fmt.Sprintf("task %s is closed (%s)", e.TaskID, e.Status)
}

func (e *TaskClosedError) Code() string { return CodeTaskClosed }

// AlreadyInProgressError is returned when starting a task that is already
// running.
type AlreadyInProgressError struct {
	TaskID string
}

func (e *AlreadyInProgressError) Error() string {
	return fmt.Sprintf("task %s is already in progress", e.TaskID)
}

func (e *AlreadyInProgressError) Code() string { return CodeAlreadyInProgress }

// AnotherTaskActiveError is returned when starting a task while a different
// task of the same owner is running. It carries the conflicting task's
// identity for user messaging.
type AnotherTaskActiveError struct {
	ActiveID   string
	ActiveName string
}

func (e *AnotherTaskActiveError) Error() string {
	return fmt.Sprintf("another task is already active: %q", e.ActiveName)
}

func (e *AnotherTaskActiveError) Code() string { return CodeAnotherTaskActive }

// NotInProgressError is returned when pausing a task that is not running.
type NotInProgressError struct {
	TaskID string
	Status Status
}

func (e *NotInProgressError) Error() string {
	return fmt.Sprintf("task %s is not in progress (%s)", e.TaskID, e.Status)
}

func (e *NotInProgressError) Code() string { return CodeNotInProgress }

// AlreadyCompletedError is returned when completing a completed task.
type AlreadyCompletedError struct {
	TaskID string
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("task %s is already completed", e.TaskID)
}

func (e *AlreadyCompletedError) Code() string { return CodeAlreadyCompleted }

// TaskCancelledError is returned when completing a cancelled task.
type TaskCancelledError struct {
	TaskID string
}

func (e *TaskCancelledError) Error() string {
	return fmt.Sprintf("task %s is cancelled", e.TaskID)
}

func (e *TaskCancelledError) Code() string { return CodeTaskCancelled }

// TaskInProgressError is returned when deleting a running task.
type TaskInProgressError struct {
	TaskID string
}

func (e *TaskInProgressError) Error() string {
	return fmt.Sprintf("task %s is in progress; pause or complete it first", e.TaskID)
}

func (e *TaskInProgressError) Code() string { return CodeTaskInProgress }
