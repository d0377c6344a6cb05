//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/postgres"
	redisstore "github.com/Anjos3/agente-seguimiento/internal/redis"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
)

type shiftClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func (c *shiftClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().UTC().Add(c.offset)
}

func (c *shiftClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// newEngine wires a timer engine against the test Postgres and Redis
// containers and truncates the tables on cleanup.
func newEngine(t *testing.T) (*timer.Engine, *postgres.Store, *shiftClock) {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE task_events, tasks CASCADE") //nolint:errcheck
		pool.Close()
	})

	redisClient := redisstore.NewClient(testRedisAddr)
	t.Cleanup(func() { redisClient.Close() })

	st := postgres.NewStore(pool)
	clock := &shiftClock{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := timer.NewEngine(st, clock, nil, redisstore.NewOwnerLocker(redisClient), logger)
	return engine, st, clock
}

func seedTask(t *testing.T, st *postgres.Store, ownerID, name string) *domain.Task {
	t.Helper()
	now := time.Now().UTC()
	task := &domain.Task{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Status:    domain.StatusPending,
		Priority:  domain.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

func TestTimer_FullCycle(t *testing.T) {
	engine, st, clock := newEngine(t)
	ctx := context.Background()
	owner := uuid.New().String()

	task := seedTask(t, st, owner, "integration work")

	started, err := engine.Start(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, started.Status)
	require.NotNil(t, started.ActualStart)

	clock.Advance(30 * time.Minute)
	paused, err := engine.Pause(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, paused.Status)
	require.NotNil(t, paused.ActualMinutes)
	assert.Equal(t, 30, *paused.ActualMinutes)

	_, err = engine.Start(ctx, owner, task.ID)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)

	completed, err := engine.Complete(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	require.NotNil(t, completed.ActualMinutes)
	assert.Equal(t, 50, *completed.ActualMinutes)

	events, err := st.Events(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, domain.EventStarted, events[0].Type)
	assert.Equal(t, domain.EventPaused, events[1].Type)
	assert.Equal(t, domain.EventResumed, events[2].Type)
	assert.Equal(t, domain.EventCompleted, events[3].Type)
}

func TestTimer_SecondStartRejected(t *testing.T) {
	engine, st, _ := newEngine(t)
	ctx := context.Background()
	owner := uuid.New().String()

	first := seedTask(t, st, owner, "first")
	second := seedTask(t, st, owner, "second")

	_, err := engine.Start(ctx, owner, first.ID)
	require.NoError(t, err)

	_, err = engine.Start(ctx, owner, second.ID)
	var active *domain.AnotherTaskActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, first.ID, active.ActiveID)
	assert.Equal(t, "first", active.ActiveName)
}

func TestTimer_UniqueIndexUnderConcurrentStarts(t *testing.T) {
	engine, st, _ := newEngine(t)
	ctx := context.Background()
	owner := uuid.New().String()

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = seedTask(t, st, owner, "contender").ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = engine.Start(ctx, owner, id)
		}(i, id)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var activeErr *domain.AnotherTaskActiveError
		if !errors.As(err, &activeErr) && !errors.Is(err, redisstore.ErrLockHeld) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	active, err := st.ActiveTasks(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestTimer_OwnersDoNotInterfere(t *testing.T) {
	engine, st, _ := newEngine(t)
	ctx := context.Background()

	ownerA := uuid.New().String()
	ownerB := uuid.New().String()
	taskA := seedTask(t, st, ownerA, "a")
	taskB := seedTask(t, st, ownerB, "b")

	_, err := engine.Start(ctx, ownerA, taskA.ID)
	require.NoError(t, err)
	_, err = engine.Start(ctx, ownerB, taskB.ID)
	require.NoError(t, err)
}

func TestTimer_CancelWhileRunning(t *testing.T) {
	engine, st, clock := newEngine(t)
	ctx := context.Background()
	owner := uuid.New().String()

	task := seedTask(t, st, owner, "doomed")
	_, err := engine.Start(ctx, owner, task.ID)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	cancelled, err := engine.Cancel(ctx, owner, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.ActualMinutes)
	assert.Equal(t, 15, *cancelled.ActualMinutes)

	// The slot is free again for the owner.
	next := seedTask(t, st, owner, "next")
	_, err = engine.Start(ctx, owner, next.ID)
	require.NoError(t, err)
}
