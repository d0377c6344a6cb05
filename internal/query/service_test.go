package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/memstore"
	"github.com/Anjos3/agente-seguimiento/internal/query"
	"github.com/Anjos3/agente-seguimiento/internal/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var today = time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*query.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return query.NewService(st, fixedClock{now: today}), st
}

type taskOpts struct {
	status        domain.Status
	priority      domain.Priority
	scheduledDate *time.Time
	actualStart   *time.Time
	actualMinutes *int
	createdAt     time.Time
}

func seed(t *testing.T, st *memstore.Store, ownerID, name string, o taskOpts) *domain.Task {
	t.Helper()
	if o.status == "" {
		o.status = domain.StatusPending
	}
	if o.priority == "" {
		o.priority = domain.PriorityMedium
	}
	if o.createdAt.IsZero() {
		o.createdAt = today
	}
	task := &domain.Task{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Name:          name,
		Status:        o.status,
		Priority:      o.priority,
		ScheduledDate: o.scheduledDate,
		ActualStart:   o.actualStart,
		ActualMinutes: o.actualMinutes,
		CreatedAt:     o.createdAt,
		UpdatedAt:     o.createdAt,
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func tp(t time.Time) *time.Time { return &t }
func ip(i int) *int             { return &i }

// ── active task ──────────────────────────────────────────────────────────────

func TestActiveTask_None(t *testing.T) {
	svc, st := newService(t)
	seed(t, st, "u1", "pending", taskOpts{})

	got, err := svc.ActiveTask(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestActiveTask_Single(t *testing.T) {
	svc, st := newService(t)
	want := seed(t, st, "u1", "running", taskOpts{status: domain.StatusInProgress})
	seed(t, st, "u2", "other owner", taskOpts{status: domain.StatusInProgress})

	got, err := svc.ActiveTask(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
}

// ── today tasks ──────────────────────────────────────────────────────────────

func TestTodayTasks_InclusionClauses(t *testing.T) {
	svc, st := newService(t)
	yesterday := today.Add(-24 * time.Hour)

	scheduledToday := seed(t, st, "u1", "scheduled today, never started",
		taskOpts{scheduledDate: tp(today)})
	startedToday := seed(t, st, "u1", "started today",
		taskOpts{status: domain.StatusCompleted, actualStart: tp(today.Add(-3 * time.Hour))})
	// Started yesterday, still running: included via the status clause even
	// though neither its scheduled_date nor actual_start date is today.
	carriedOver := seed(t, st, "u1", "carried over",
		taskOpts{status: domain.StatusInProgress, scheduledDate: tp(yesterday), actualStart: tp(yesterday)})
	seed(t, st, "u1", "yesterday only",
		taskOpts{status: domain.StatusCompleted, scheduledDate: tp(yesterday), actualStart: tp(yesterday)})

	got, err := svc.TodayTasks(context.Background(), "u1")
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, task := range got {
		ids[i] = task.ID
	}
	assert.ElementsMatch(t, []string{scheduledToday.ID, startedToday.ID, carriedOver.ID}, ids)
}

func TestTodayTasks_Ordering(t *testing.T) {
	svc, st := newService(t)

	early := seed(t, st, "u1", "started early",
		taskOpts{status: domain.StatusCompleted, actualStart: tp(today.Add(-5 * time.Hour))})
	late := seed(t, st, "u1", "started late",
		taskOpts{status: domain.StatusCompleted, actualStart: tp(today.Add(-1 * time.Hour))})
	neverStarted := seed(t, st, "u1", "scheduled only",
		taskOpts{scheduledDate: tp(today)})
	running := seed(t, st, "u1", "running",
		taskOpts{status: domain.StatusInProgress, actualStart: tp(today.Add(-2 * time.Hour))})

	got, err := svc.TodayTasks(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, 4)

	// in_progress first, then actual_start descending, nulls last.
	assert.Equal(t, running.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)
	assert.Equal(t, early.ID, got[2].ID)
	assert.Equal(t, neverStarted.ID, got[3].ID)
}

// ── stats ────────────────────────────────────────────────────────────────────

func TestStats_CountsAndCompletedMinutes(t *testing.T) {
	svc, st := newService(t)

	seed(t, st, "u1", "done A", taskOpts{
		status: domain.StatusCompleted, actualStart: tp(today.Add(-4 * time.Hour)), actualMinutes: ip(30)})
	seed(t, st, "u1", "done B", taskOpts{
		status: domain.StatusCompleted, actualStart: tp(today.Add(-2 * time.Hour)), actualMinutes: ip(45)})
	// Pending with minutes from earlier pauses: counted in counts, excluded
	// from the completed-minutes total.
	seed(t, st, "u1", "paused", taskOpts{
		status: domain.StatusPending, actualStart: tp(today.Add(-time.Hour)), actualMinutes: ip(10)})
	seed(t, st, "u1", "running", taskOpts{
		status: domain.StatusInProgress, actualStart: tp(today.Add(-30 * time.Minute))})

	stats, err := svc.StatsFor(context.Background(), "u1", time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Counts[domain.StatusCompleted])
	assert.Equal(t, 1, stats.Counts[domain.StatusPending])
	assert.Equal(t, 1, stats.Counts[domain.StatusInProgress])
	assert.Equal(t, 0, stats.Counts[domain.StatusCancelled])
	assert.Equal(t, 75, stats.TotalMinutes)
}

func TestStats_ExplicitDate(t *testing.T) {
	svc, st := newService(t)
	yesterday := today.Add(-24 * time.Hour)

	seed(t, st, "u1", "done yesterday", taskOpts{
		status: domain.StatusCompleted, actualStart: tp(yesterday), actualMinutes: ip(60)})
	seed(t, st, "u1", "done today", taskOpts{
		status: domain.StatusCompleted, actualStart: tp(today.Add(-time.Hour)), actualMinutes: ip(20)})

	stats, err := svc.StatsFor(context.Background(), "u1", yesterday)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Counts[domain.StatusCompleted])
	assert.Equal(t, 60, stats.TotalMinutes)
}

// ── list ─────────────────────────────────────────────────────────────────────

func TestList_StatusAndPriorityFilters(t *testing.T) {
	svc, st := newService(t)

	seed(t, st, "u1", "low pending", taskOpts{priority: domain.PriorityLow})
	want := seed(t, st, "u1", "high pending", taskOpts{priority: domain.PriorityHigh})
	seed(t, st, "u1", "high done", taskOpts{status: domain.StatusCompleted, priority: domain.PriorityHigh})

	pending := domain.StatusPending
	high := domain.PriorityHigh
	got, err := svc.List(context.Background(), "u1", store.ListFilters{Status: &pending, Priority: &high})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want.ID, got[0].ID)
}

func TestList_OrderingAndPagination(t *testing.T) {
	svc, st := newService(t)
	tomorrow := today.Add(24 * time.Hour)

	unscheduled := seed(t, st, "u1", "unscheduled", taskOpts{createdAt: today.Add(-time.Hour)})
	soon := seed(t, st, "u1", "soon", taskOpts{scheduledDate: tp(today)})
	later := seed(t, st, "u1", "later", taskOpts{scheduledDate: tp(tomorrow)})
	running := seed(t, st, "u1", "running", taskOpts{status: domain.StatusInProgress})

	got, err := svc.List(context.Background(), "u1", store.ListFilters{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	// in_progress first, then scheduled_date ascending, nulls last.
	assert.Equal(t, running.ID, got[0].ID)
	assert.Equal(t, soon.ID, got[1].ID)
	assert.Equal(t, later.ID, got[2].ID)
	assert.Equal(t, unscheduled.ID, got[3].ID)

	page, err := svc.List(context.Background(), "u1", store.ListFilters{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, soon.ID, page[0].ID)
	assert.Equal(t, later.ID, page[1].ID)
}
