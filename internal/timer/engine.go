package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/store"
	"github.com/Anjos3/agente-seguimiento/pkg/telemetry"
)

// Publisher receives every ledger event appended by a successful transition.
// Publish failures are the publisher's problem; the engine treats them as
// non-fatal.
type Publisher interface {
	PublishEvent(ctx context.Context, task *domain.Task, ev *domain.TaskEvent) error
}

// Locker serializes the read-modify-write sequence per owner across
// instances. The storage-level uniqueness constraint remains the backstop;
// the lock only turns the common race into a friendly error.
type Locker interface {
	WithOwnerLock(ctx context.Context, ownerID string, fn func(context.Context) error) error
}

// Engine is the timer state machine. It validates transitions against the
// current task state, appends ledger events, and refreshes the
// actual_minutes cache from the ledger on every closing transition.
type Engine struct {
	store  store.TaskStore
	clock  Clock
	pub    Publisher // may be nil
	locker Locker    // may be nil
	logger *slog.Logger
}

// NewEngine wires the engine's collaborators. pub and locker are optional.
func NewEngine(st store.TaskStore, clock Clock, pub Publisher, locker Locker, logger *slog.Logger) *Engine {
	return &Engine{store: st, clock: clock, pub: pub, locker: locker, logger: logger}
}

// Start begins or resumes work on a task. The task must be pending and the
// owner must have no other running task. A task that was started before
// records a resumed event and keeps its original actual_start.
func (e *Engine) Start(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	var out *domain.Task
	err := e.locked(ctx, ownerID, func(ctx context.Context) error {
		t, err := e.store.TaskByIDForOwner(ctx, taskID, ownerID)
		if err != nil {
			return err
		}
		if t.Status == domain.StatusInProgress {
			return &domain.AlreadyInProgressError{TaskID: taskID}
		}
		if t.Status.IsTerminal() {
			return &domain.TaskClosedError{TaskID: taskID, Status: t.Status}
		}

		active, err := e.activeTask(ctx, ownerID)
		if err != nil {
			return err
		}
		if active != nil && active.ID != taskID {
			return &domain.AnotherTaskActiveError{ActiveID: active.ID, ActiveName: active.Name}
		}

		now := e.clock.Now()
		evType := domain.EventStarted
		if t.ActualStart != nil {
			evType = domain.EventResumed
		}

		t.Status = domain.StatusInProgress
		if t.ActualStart == nil {
			t.ActualStart = &now
		}
		t.UpdatedAt = now

		// Update before appending: if a concurrent start won the race the
		// unique constraint fires here and the ledger stays clean.
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		ev, err := e.store.AppendEvent(ctx, taskID, evType, now, nil)
		if err != nil {
			return err
		}

		e.publish(ctx, t, ev)
		out = t
		return nil
	})
	e.observe("start", err)
	return out, err
}

// Pause stops the running interval and returns the task to pending.
// actual_minutes is recomputed from the ledger including the pause event.
func (e *Engine) Pause(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	var out *domain.Task
	err := e.locked(ctx, ownerID, func(ctx context.Context) error {
		t, err := e.store.TaskByIDForOwner(ctx, taskID, ownerID)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusInProgress {
			return &domain.NotInProgressError{TaskID: taskID, Status: t.Status}
		}

		now := e.clock.Now()
		ev, err := e.store.AppendEvent(ctx, taskID, domain.EventPaused, now, nil)
		if err != nil {
			return err
		}
		mins, err := e.minutes(ctx, taskID, now)
		if err != nil {
			return err
		}

		t.Status = domain.StatusPending
		t.ActualMinutes = &mins
		t.UpdatedAt = now
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}

		e.publish(ctx, t, ev)
		out = t
		return nil
	})
	e.observe("pause", err)
	return out, err
}

// Complete closes a task. taskID may be empty, in which case the owner's
// active task is completed; if there is none the operation fails with
// TASK_NOT_FOUND. Completing works from both pending and in_progress.
func (e *Engine) Complete(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	var out *domain.Task
	err := e.locked(ctx, ownerID, func(ctx context.Context) error {
		var t *domain.Task
		var err error
		if taskID == "" {
			t, err = e.activeTask(ctx, ownerID)
			if err != nil {
				return err
			}
			if t == nil {
				return &domain.TaskNotFoundError{}
			}
		} else {
			t, err = e.store.TaskByIDForOwner(ctx, taskID, ownerID)
			if err != nil {
				return err
			}
		}
		switch t.Status {
		case domain.StatusCompleted:
			return &domain.AlreadyCompletedError{TaskID: t.ID}
		case domain.StatusCancelled:
			return &domain.TaskCancelledError{TaskID: t.ID}
		}

		now := e.clock.Now()
		ev, err := e.store.AppendEvent(ctx, t.ID, domain.EventCompleted, now, nil)
		if err != nil {
			return err
		}
		mins, err := e.minutes(ctx, t.ID, now)
		if err != nil {
			return err
		}

		t.Status = domain.StatusCompleted
		t.ActualEnd = &now
		t.ActualMinutes = &mins
		t.UpdatedAt = now
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}

		e.publish(ctx, t, ev)
		out = t
		return nil
	})
	e.observe("complete", err)
	return out, err
}

// Cancel closes a task without completing it. A task that never started
// keeps actual_minutes = 0; otherwise the cache is recomputed from the
// ledger as of now.
func (e *Engine) Cancel(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	var out *domain.Task
	err := e.locked(ctx, ownerID, func(ctx context.Context) error {
		t, err := e.store.TaskByIDForOwner(ctx, taskID, ownerID)
		if err != nil {
			return err
		}
		if t.Status.IsTerminal() {
			return &domain.TaskClosedError{TaskID: taskID, Status: t.Status}
		}

		now := e.clock.Now()
		ev, err := e.store.AppendEvent(ctx, taskID, domain.EventCancelled, now, nil)
		if err != nil {
			return err
		}
		mins := 0
		if t.ActualStart != nil {
			if mins, err = e.minutes(ctx, taskID, now); err != nil {
				return err
			}
		}

		t.Status = domain.StatusCancelled
		t.ActualEnd = &now
		t.ActualMinutes = &mins
		t.UpdatedAt = now
		if err := e.store.UpdateTask(ctx, t); err != nil {
			return err
		}

		e.publish(ctx, t, ev)
		out = t
		return nil
	})
	e.observe("cancel", err)
	return out, err
}

// ElapsedMinutes recomputes a task's elapsed minutes from the ledger as of
// now, without touching the cache.
func (e *Engine) ElapsedMinutes(ctx context.Context, ownerID, taskID string) (int, error) {
	if _, err := e.store.TaskByIDForOwner(ctx, taskID, ownerID); err != nil {
		return 0, err
	}
	return e.minutes(ctx, taskID, e.clock.Now())
}

func (e *Engine) minutes(ctx context.Context, taskID string, now time.Time) (int, error) {
	events, err := e.store.Events(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return Minutes(events, now), nil
}

func (e *Engine) activeTask(ctx context.Context, ownerID string) (*domain.Task, error) {
	active, err := e.store.ActiveTasks(ctx, ownerID)
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

func (e *Engine) locked(ctx context.Context, ownerID string, fn func(context.Context) error) error {
	if e.locker == nil {
		return fn(ctx)
	}
	return e.locker.WithOwnerLock(ctx, ownerID, fn)
}

func (e *Engine) publish(ctx context.Context, t *domain.Task, ev *domain.TaskEvent) {
	if e.pub == nil {
		return
	}
	if err := e.pub.PublishEvent(ctx, t, ev); err != nil {
		telemetry.EventsPublished.WithLabelValues("error").Inc()
		e.logger.Error("publish task event",
			slog.String("task_id", t.ID),
			slog.String("event_type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	telemetry.EventsPublished.WithLabelValues("ok").Inc()
}

func (e *Engine) observe(op string, err error) {
	result := "ok"
	if err != nil {
		if code, coded := domain.ErrorCode(err); coded {
			result = code
		} else {
			result = "error"
		}
	}
	telemetry.TimerTransitions.WithLabelValues(op, result).Inc()
}
