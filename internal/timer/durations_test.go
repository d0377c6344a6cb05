package timer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
)

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2025-03-10T"+hhmm+":00Z")
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return ts
}

func ev(t *testing.T, et domain.EventType, hhmm string) *domain.TaskEvent {
	t.Helper()
	return &domain.TaskEvent{TaskID: "t1", Type: et, OccurredAt: at(t, hhmm)}
}

func TestMinutes_PauseResumeCycle(t *testing.T) {
	events := []*domain.TaskEvent{
		ev(t, domain.EventStarted, "09:00"),
		ev(t, domain.EventPaused, "09:30"),
		ev(t, domain.EventResumed, "10:00"),
		ev(t, domain.EventCompleted, "10:20"),
	}
	assert.Equal(t, 50, timer.Minutes(events, at(t, "12:00")))
}

func TestMinutes_OpenIntervalGrowsWithNow(t *testing.T) {
	events := []*domain.TaskEvent{ev(t, domain.EventStarted, "09:00")}

	assert.Equal(t, 10, timer.Minutes(events, at(t, "09:10")))
	assert.Equal(t, 25, timer.Minutes(events, at(t, "09:25")))
}

func TestMinutes_EmptyLedger(t *testing.T) {
	assert.Equal(t, 0, timer.Minutes(nil, at(t, "09:00")))
}

func TestMinutes_ClosingEventWithoutOpenInterval(t *testing.T) {
	events := []*domain.TaskEvent{
		ev(t, domain.EventPaused, "09:00"),
		ev(t, domain.EventStarted, "09:10"),
		ev(t, domain.EventCompleted, "09:40"),
	}
	assert.Equal(t, 30, timer.Minutes(events, at(t, "12:00")))
}

func TestMinutes_DuplicateOpenKeepsEarliestStart(t *testing.T) {
	// A duplicate start that slipped past the active-task check must not
	// drop the earlier interval: the earliest open timestamp wins.
	events := []*domain.TaskEvent{
		ev(t, domain.EventStarted, "09:00"),
		ev(t, domain.EventResumed, "09:20"),
		ev(t, domain.EventPaused, "09:30"),
	}
	assert.Equal(t, 30, timer.Minutes(events, at(t, "12:00")))
}

func TestMinutes_CancelledEventLeavesIntervalOpen(t *testing.T) {
	// cancelled is not a closing event; the open interval runs to now. The
	// engine computes minutes at cancellation time, so the cache captures
	// exactly the worked span.
	events := []*domain.TaskEvent{
		ev(t, domain.EventStarted, "09:00"),
		ev(t, domain.EventCancelled, "09:15"),
	}
	assert.Equal(t, 15, timer.Minutes(events, at(t, "09:15")))
}

func TestMinutes_RoundsToNearestMinute(t *testing.T) {
	start := at(t, "09:00")
	events := []*domain.TaskEvent{
		{TaskID: "t1", Type: domain.EventStarted, OccurredAt: start},
		{TaskID: "t1", Type: domain.EventPaused, OccurredAt: start.Add(90 * time.Second)},
	}
	assert.Equal(t, 2, timer.Minutes(events, start.Add(time.Hour)))

	events[1].OccurredAt = start.Add(89 * time.Second)
	assert.Equal(t, 1, timer.Minutes(events, start.Add(time.Hour)))
}

func TestMinutes_NeverNegative(t *testing.T) {
	// Clock skew: now before the open start.
	events := []*domain.TaskEvent{ev(t, domain.EventStarted, "09:30")}
	assert.Equal(t, 0, timer.Minutes(events, at(t, "09:00")))
}

func TestMinutes_MonotonicUnderAdvancingNow(t *testing.T) {
	events := []*domain.TaskEvent{
		ev(t, domain.EventStarted, "09:00"),
		ev(t, domain.EventPaused, "09:30"),
		ev(t, domain.EventResumed, "10:00"),
	}
	prev := 0
	for _, now := range []string{"10:00", "10:05", "10:30", "11:00"} {
		got := timer.Minutes(events, at(t, now))
		assert.GreaterOrEqual(t, got, prev, "minutes must not decrease as now advances")
		prev = got
	}
}
