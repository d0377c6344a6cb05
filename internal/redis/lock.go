// Package redis provides the per-owner timer lease. The database's partial
// unique index is the hard guarantee; the lease serializes an owner's
// transitions across instances so most races never reach the database.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Anjos3/agente-seguimiento/pkg/retry"
)

const (
	lockTTL       = 10 * time.Second
	lockRetries   = 3
	lockRetryBase = 50 * time.Millisecond
)

// ErrLockHeld is returned when the owner's lease could not be acquired
// within the retry budget.
var ErrLockHeld = errors.New("owner timer lock held by another request")

func lockKey(ownerID string) string { return "timer:owner-lock:" + ownerID }

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// OwnerLocker implements timer.Locker on Redis SET NX leases.
type OwnerLocker struct {
	client *redis.Client
}

func NewOwnerLocker(client *redis.Client) *OwnerLocker {
	return &OwnerLocker{client: client}
}

// WithOwnerLock runs fn while holding the owner's lease. The lease value is
// unique per acquisition so an expired lease is never released by a
// latecomer.
func (l *OwnerLocker) WithOwnerLock(ctx context.Context, ownerID string, fn func(context.Context) error) error {
	key := lockKey(ownerID)
	token := uuid.New().String()

	err := retry.Do(ctx, retry.Config{
		MaxAttempts: lockRetries,
		BaseDelay:   lockRetryBase,
	}, func() error {
		ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire owner lock for %s: %w", ownerID, err)
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer l.release(ctx, key, token)

	return fn(ctx)
}

// release deletes the lease only if we still own it (atomic Lua script
// avoids deleting a successor's lease after expiry).
func (l *OwnerLocker) release(ctx context.Context, key, token string) {
	releaseScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	// Best-effort; the TTL reclaims the lease if this fails.
	_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
}
