// Package tasks implements the task CRUD surface. Timer transitions live in
// internal/timer; plain field edits and lifecycle guards live here.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/store"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
	"github.com/Anjos3/agente-seguimiento/pkg/telemetry"
)

// CreateInput carries the fields accepted at task creation. StartNow starts
// the timer immediately after creation.
type CreateInput struct {
	Name             string
	Description      *string
	CategoryID       *string
	Priority         domain.Priority
	ScheduledDate    *time.Time
	EstimatedMinutes *int
	StartNow         bool
}

// UpdateInput patches editable fields. Nil fields are left unchanged.
// Editing is only permitted while the task is pending or in_progress.
type UpdateInput struct {
	Name             *string
	Description      *string
	CategoryID       *string
	Priority         *domain.Priority
	ScheduledDate    *time.Time
	EstimatedMinutes *int
}

type Service struct {
	store  store.TaskStore
	engine *timer.Engine
	clock  timer.Clock
	logger *slog.Logger
}

func NewService(st store.TaskStore, engine *timer.Engine, clock timer.Clock, logger *slog.Logger) *Service {
	return &Service{store: st, engine: engine, clock: clock, logger: logger}
}

// Create stores a new pending task. With StartNow the timer is started right
// away; a start rejection (e.g. another task already active) does not undo
// the creation — the task is returned pending and the refusal is logged.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Task, error) {
	now := s.clock.Now()
	t := &domain.Task{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		CategoryID:       in.CategoryID,
		Name:             in.Name,
		Description:      in.Description,
		Status:           domain.StatusPending,
		Priority:         in.Priority,
		ScheduledDate:    in.ScheduledDate,
		EstimatedMinutes: in.EstimatedMinutes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}

	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	telemetry.TasksCreated.Inc()

	if in.StartNow {
		started, err := s.engine.Start(ctx, ownerID, t.ID)
		if err == nil {
			return started, nil
		}
		if _, coded := domain.ErrorCode(err); !coded {
			return nil, err
		}
		s.logger.Warn("start_now refused",
			slog.String("task_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
	return t, nil
}

// Get returns a task with its event history.
func (s *Service) Get(ctx context.Context, ownerID, taskID string) (*domain.Task, []*domain.TaskEvent, error) {
	t, err := s.store.TaskByIDForOwner(ctx, taskID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.store.Events(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	return t, events, nil
}

// Update edits the task's user-facing fields. Closed tasks are immutable.
func (s *Service) Update(ctx context.Context, ownerID, taskID string, in UpdateInput) (*domain.Task, error) {
	t, err := s.store.TaskByIDForOwner(ctx, taskID, ownerID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return nil, &domain.TaskClosedError{TaskID: taskID, Status: t.Status}
	}

	if in.Name != nil {
		t.Name = *in.Name
	}
	if in.Description != nil {
		t.Description = in.Description
	}
	if in.CategoryID != nil {
		t.CategoryID = in.CategoryID
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.ScheduledDate != nil {
		t.ScheduledDate = in.ScheduledDate
	}
	if in.EstimatedMinutes != nil {
		t.EstimatedMinutes = in.EstimatedMinutes
	}
	t.UpdatedAt = s.clock.Now()

	if err := s.store.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task. A running task must be paused or completed first;
// it is never physically deleted while in_progress.
func (s *Service) Delete(ctx context.Context, ownerID, taskID string) error {
	t, err := s.store.TaskByIDForOwner(ctx, taskID, ownerID)
	if err != nil {
		return err
	}
	if t.Status == domain.StatusInProgress {
		return &domain.TaskInProgressError{TaskID: taskID}
	}
	return s.store.RemoveTask(ctx, taskID)
}
