// Package reconcile repairs drift between the event ledger and the cached
// actual_minutes column. A crash between the ledger append and the task row
// update leaves the cache stale; the nightly pass recomputes it from the
// ledger, which is the source of truth.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
	"github.com/Anjos3/agente-seguimiento/internal/timer"
	"github.com/Anjos3/agente-seguimiento/pkg/telemetry"
)

const (
	leaderKey = "reconciler:leader"
	leaderTTL = 5 * time.Minute
)

// Reconciler runs the nightly ledger sweep. With multiple instances a Redis
// lease elects a single runner per pass.
type Reconciler struct {
	pool       *pgxpool.Pool
	redis      *redis.Client
	clock      timer.Clock
	instanceID string
	logger     *slog.Logger

	cron *cron.Cron
}

func NewReconciler(
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	clock timer.Clock,
	instanceID string,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		pool:       pool,
		redis:      redisClient,
		clock:      clock,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Start schedules the sweep with the given cron expression (standard five
// field syntax) and returns once the scheduler is running.
func (r *Reconciler) Start(ctx context.Context, cronExpr string) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("parse reconcile cron %q: %w", cronExpr, err)
	}

	r.cron = cron.New()
	_, err := r.cron.AddFunc(cronExpr, func() {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error("reconcile pass failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconcile job: %w", err)
	}
	r.cron.Start()
	r.logger.Info("reconciler scheduled", slog.String("cron", cronExpr))
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunOnce performs a single sweep if this instance wins leadership.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if !r.acquireLeadership(ctx) {
		r.logger.Debug("reconcile pass skipped, another instance is leader")
		return nil
	}

	repaired, scanned, err := r.sweep(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("reconcile pass complete",
		slog.Int("scanned", scanned),
		slog.Int("repaired", repaired),
	)
	return nil
}

// acquireLeadership attempts SETNX; returns true if this instance is the
// leader for the current pass.
func (r *Reconciler) acquireLeadership(ctx context.Context) bool {
	if r.redis == nil {
		return true
	}
	ok, err := r.redis.SetNX(ctx, leaderKey, r.instanceID, leaderTTL).Result()
	if err != nil {
		r.logger.Error("reconciler leader election SetNX", slog.String("error", err.Error()))
		return false
	}
	if ok {
		return true
	}

	// Already set — renew only if we own it (atomic Lua script avoids races).
	renewScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	result, err := renewScript.Run(
		ctx, r.redis,
		[]string{leaderKey},
		r.instanceID,
		leaderTTL.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("reconciler leader renewal", slog.String("error", err.Error()))
		return false
	}
	return result == 1
}

// sweep recomputes actual_minutes from the ledger for every task with a
// closed ledger. Running tasks are skipped because their open interval is
// still growing, and cancelled tasks keep the minutes frozen at cancel time.
func (r *Reconciler) sweep(ctx context.Context) (repaired, scanned int, err error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.actual_minutes
		FROM tasks t
		WHERE t.status IN ('pending', 'completed')
		  AND EXISTS (SELECT 1 FROM task_events e WHERE e.task_id = t.id)
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("query reconcile candidates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		id      string
		minutes *int
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.minutes); err != nil {
			return 0, 0, fmt.Errorf("scan reconcile candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	now := r.clock.Now()
	for _, c := range candidates {
		scanned++
		events, err := r.loadEvents(ctx, c.id)
		if err != nil {
			r.logger.Error("reconcile load events",
				slog.String("task_id", c.id),
				slog.String("error", err.Error()),
			)
			continue
		}
		want := timer.Minutes(events, now)
		if c.minutes != nil && *c.minutes == want {
			continue
		}
		if _, err := r.pool.Exec(ctx, `
			UPDATE tasks
			SET actual_minutes = $1, updated_at = $2
			WHERE id = $3 AND status IN ('pending', 'completed')
		`, want, now, c.id); err != nil {
			r.logger.Error("reconcile repair",
				slog.String("task_id", c.id),
				slog.String("error", err.Error()),
			)
			continue
		}
		repaired++
		telemetry.ReconcilerRepairs.Inc()
		r.logger.Info("repaired cached minutes",
			slog.String("task_id", c.id),
			slog.Int("minutes", want),
		)
	}
	return repaired, scanned, nil
}

func (r *Reconciler) loadEvents(ctx context.Context, taskID string) ([]*domain.TaskEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, event_type, occurred_at
		FROM task_events
		WHERE task_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("events for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var events []*domain.TaskEvent
	for rows.Next() {
		var ev domain.TaskEvent
		var typeStr string
		if err := rows.Scan(&ev.ID, &ev.TaskID, &typeStr, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		ev.Type = domain.EventType(typeStr)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
