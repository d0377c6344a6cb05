// Package memstore is an in-memory TaskStore used by unit tests and
// `serve --store memory` development runs. It enforces the same
// single-active-task constraint the Postgres partial unique index does.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/store"
)

type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*domain.Task
	events map[string][]*domain.TaskEvent // taskID → ledger in insertion order
}

func New() *Store {
	return &Store{
		tasks:  make(map[string]*domain.Task),
		events: make(map[string][]*domain.TaskEvent),
	}
}

var _ store.TaskStore = (*Store)(nil)

func (s *Store) CreateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == domain.StatusInProgress {
		if conflict := s.activeLocked(t.OwnerID, t.ID); conflict != nil {
			return &domain.AnotherTaskActiveError{ActiveID: conflict.ID, ActiveName: conflict.Name}
		}
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) TaskByID(_ context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *Store) TaskByIDForOwner(_ context.Context, id, ownerID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *Store) UpdateTask(_ context.Context, t *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return &domain.TaskNotFoundError{TaskID: t.ID}
	}
	if t.Status == domain.StatusInProgress {
		if conflict := s.activeLocked(t.OwnerID, t.ID); conflict != nil {
			return &domain.AnotherTaskActiveError{ActiveID: conflict.ID, ActiveName: conflict.Name}
		}
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) RemoveTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	delete(s.tasks, id)
	delete(s.events, id)
	return nil
}

func (s *Store) ListTasks(_ context.Context, ownerID string, f store.ListFilters) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Day != nil && (t.ScheduledDate == nil || !sameDay(*t.ScheduledDate, *f.Day)) {
			continue
		}
		if f.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *f.CategoryID) {
			continue
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Status == domain.StatusInProgress) != (b.Status == domain.StatusInProgress) {
			return a.Status == domain.StatusInProgress
		}
		if c := compareDatesAscNullsLast(a.ScheduledDate, b.ScheduledDate); c != 0 {
			return c < 0
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ActiveTasks(_ context.Context, ownerID string) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && t.Status == domain.StatusInProgress {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) TasksForDay(_ context.Context, ownerID string, day time.Time) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		scheduled := t.ScheduledDate != nil && sameDay(*t.ScheduledDate, day)
		started := t.ActualStart != nil && sameDay(*t.ActualStart, day)
		if !scheduled && !started && t.Status != domain.StatusInProgress {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Status == domain.StatusInProgress) != (b.Status == domain.StatusInProgress) {
			return a.Status == domain.StatusInProgress
		}
		if c := compareDatesDescNullsLast(a.ActualStart, b.ActualStart); c != 0 {
			return c < 0
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) CountByStatus(_ context.Context, ownerID string, day time.Time) (map[domain.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[domain.Status]int{
		domain.StatusPending:    0,
		domain.StatusInProgress: 0,
		domain.StatusCompleted:  0,
		domain.StatusCancelled:  0,
	}
	for _, t := range s.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		scheduled := t.ScheduledDate != nil && sameDay(*t.ScheduledDate, day)
		started := t.ActualStart != nil && sameDay(*t.ActualStart, day)
		if scheduled || started {
			counts[t.Status]++
		}
	}
	return counts, nil
}

func (s *Store) AppendEvent(_ context.Context, taskID string, et domain.EventType, at time.Time, metadata map[string]any) (*domain.TaskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, &domain.TaskNotFoundError{TaskID: taskID}
	}
	ev := &domain.TaskEvent{
		ID:         uuid.New().String(),
		TaskID:     taskID,
		Type:       et,
		OccurredAt: at,
		Metadata:   metadata,
	}
	s.events[taskID] = append(s.events[taskID], ev)
	return ev, nil
}

func (s *Store) Events(_ context.Context, taskID string) ([]*domain.TaskEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.TaskEvent, len(s.events[taskID]))
	copy(out, s.events[taskID])
	// Insertion order already breaks timestamp ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (s *Store) LastEvent(ctx context.Context, taskID string) (*domain.TaskEvent, error) {
	events, err := s.Events(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[len(events)-1], nil
}

// activeLocked returns the owner's running task other than excludeID, if any.
func (s *Store) activeLocked(ownerID, excludeID string) *domain.Task {
	for _, t := range s.tasks {
		if t.OwnerID == ownerID && t.ID != excludeID && t.Status == domain.StatusInProgress {
			return t
		}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func compareDatesAscNullsLast(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

func compareDatesDescNullsLast(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.After(*b):
		return -1
	case a.Before(*b):
		return 1
	}
	return 0
}
