// Package query provides derived, read-only views over stored tasks.
// Activeness is always derived from Task.status, never from separate state.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/store"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
)

// Stats aggregates an owner's tasks for one day: per-status counts plus the
// minutes logged on tasks completed that day.
type Stats struct {
	Counts       map[domain.Status]int `json:"counts"`
	TotalMinutes int                   `json:"total_minutes"`
}

type Service struct {
	store store.TaskStore
	clock timer.Clock
}

func NewService(st store.TaskStore, clock timer.Clock) *Service {
	return &Service{store: st, clock: clock}
}

// ActiveTask returns the owner's running task, or nil when there is none.
// More than one running task violates the single-active invariant and is
// surfaced as an error, never silently resolved.
func (s *Service) ActiveTask(ctx context.Context, ownerID string) (*domain.Task, error) {
	active, err := s.store.ActiveTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, nil
	case 1:
		return active[0], nil
	default:
		return nil, fmt.Errorf("integrity violation: owner %s has %d tasks in progress", ownerID, len(active))
	}
}

// TodayTasks returns tasks scheduled for today, started today, or currently
// in progress, de-duplicated and ordered per the store contract.
func (s *Service) TodayTasks(ctx context.Context, ownerID string) ([]*domain.Task, error) {
	return s.store.TasksForDay(ctx, ownerID, s.clock.Now())
}

// StatsFor computes per-status counts and completed minutes for day; a zero
// day means today.
func (s *Service) StatsFor(ctx context.Context, ownerID string, day time.Time) (*Stats, error) {
	if day.IsZero() {
		day = s.clock.Now()
	}

	counts, err := s.store.CountByStatus(ctx, ownerID, day)
	if err != nil {
		return nil, err
	}

	tasks, err := s.store.TasksForDay(ctx, ownerID, day)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, t := range tasks {
		if t.Status == domain.StatusCompleted && t.ActualMinutes != nil {
			total += *t.ActualMinutes
		}
	}

	return &Stats{Counts: counts, TotalMinutes: total}, nil
}

// List returns a filtered, paginated task listing.
func (s *Service) List(ctx context.Context, ownerID string, f store.ListFilters) ([]*domain.Task, error) {
	return s.store.ListTasks(ctx, ownerID, f)
}
