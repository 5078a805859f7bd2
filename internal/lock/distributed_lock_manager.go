package lock

import (
	"context"
	"time"

	"github.com/RezaEskandarii/cronctl/types"
)

const (
	// DefaultLimit is the slot count used when a caller passes no limit.
	DefaultLimit = 10
	// DefaultStaleness equals the longest a job may run, so a leaked slot
	// never outlives one job's worst case.
	DefaultStaleness = 10 * time.Minute

	// GlobalRunKey names the run budget shared by every ordinary job.
	GlobalRunKey = "run-events"
)

// ActionKey is the per-action lock key. The action is hashed to bound the
// key length and keep it apart from other lock names.
func ActionKey(action string) string {
	return "ev-" + types.HashAction(action)
}

// DistributedLockManager is a counting semaphore shared by every runner.
// Locks are advisory and self-heal: a lock untouched for longer than the
// staleness window is reset by the next acquirer.
type DistributedLockManager interface {
	// Prime creates the lock at zero if it does not exist yet.
	Prime(ctx context.Context, key string, expiry time.Duration) error

	// CheckAndAcquire takes one slot if fewer than limit are held, or
	// unconditionally if the lock is stale. Errors fail closed.
	CheckAndAcquire(ctx context.Context, key string, limit int, staleness time.Duration) (bool, error)

	// Release gives back one slot, never dropping below zero.
	Release(ctx context.Context, key string, expiry time.Duration) error

	// Reset frees every slot at once.
	Reset(ctx context.Context, key string, expiry time.Duration) error

	// Inspect returns the held slot count and the last touch time.
	Inspect(ctx context.Context, key string) (int64, time.Time, error)
}
