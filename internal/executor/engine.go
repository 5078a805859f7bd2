// Package executor runs one dispatched job: validation, admission against
// the distributed locks, state update, handler invocation and lock cleanup.
package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/cronctl/custom_errors"
	"github.com/RezaEskandarii/cronctl/internal/events"
	"github.com/RezaEskandarii/cronctl/internal/lock"
	"github.com/RezaEskandarii/cronctl/internal/maintenance"
	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Store is the part of the job store a run touches.
type Store interface {
	GetJobByAttributes(ctx context.Context, attrs store.JobAttributes) (*types.Job, error)
	CreateOrUpdate(ctx context.Context, params types.JobParams, flush bool) (int64, error)
	MarkCompletedByID(ctx context.Context, id int64, intent events.Intent) (bool, error)
}

type Engine struct {
	store     Store
	locks     lock.DistributedLockManager
	handlers  *config.HandlerRegistry
	schedules *config.ScheduleRegistry
	cfg       *config.CronControlConfig
	logger    zerolog.Logger
	timeNow   func() time.Time

	// running holds the job of every admitted run until its locks are
	// released, keyed by a per-run sequence number.
	running sync.Map
	seq     atomic.Uint64
}

type Option func(*Engine)

func WithClock(timeNow func() time.Time) Option {
	return func(e *Engine) { e.timeNow = timeNow }
}

func NewEngine(s Store, locks lock.DistributedLockManager, handlers *config.HandlerRegistry, schedules *config.ScheduleRegistry, cfg *config.CronControlConfig, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		locks:     locks,
		handlers:  handlers,
		schedules: schedules,
		cfg:       cfg,
		logger:    logger.With().Str("pkg", "executor").Logger(),
		timeNow:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Prime creates the global run budget lock if it is missing.
func (e *Engine) Prime(ctx context.Context) error {
	return e.locks.Prime(ctx, lock.GlobalRunKey, e.cfg.LockExpiry)
}

// Run executes the pending job identified by entry. Refusals come back as
// *custom_errors.RunError; any other error is a storage failure. A handler
// failure is not an error: the job was dispatched and its state already
// moved on, so it is reported through the result.
func (e *Engine) Run(ctx context.Context, entry types.QueueEntry, force bool) (types.RunResult, error) {
	if entry.Timestamp <= 0 || entry.ActionHashed == "" || entry.Instance == "" {
		return types.RunResult{}, custom_errors.NewRunError(custom_errors.KindInvalidInput, "Invalid or incomplete request data.")
	}
	identifier := types.Job{Timestamp: entry.Timestamp, ActionHashed: entry.ActionHashed, Instance: entry.Instance}.Identifier()

	if !force && entry.Timestamp > e.timeNow().Unix() {
		return types.RunResult{}, custom_errors.NewRunError(custom_errors.KindPremature,
			"Job with identifier `%s` is not scheduled to run yet.", identifier)
	}

	job, err := e.store.GetJobByAttributes(ctx, store.JobAttributes{
		Timestamp:    entry.Timestamp,
		ActionHashed: entry.ActionHashed,
		Instance:     entry.Instance,
	})
	if errors.Is(err, store.ErrJobNotFound) {
		return types.RunResult{}, custom_errors.NewRunError(custom_errors.KindNoEvent,
			"Job with identifier `%s` could not be found.", identifier)
	}
	if err != nil {
		return types.RunResult{}, err
	}

	log := e.logger.With().
		Int64("job_id", job.ID).
		Str("action", job.Action).
		Int64("timestamp", job.Timestamp).
		Bool("force", force).
		Logger()
	args := encodeArgs(job.Args)
	start := e.timeNow()

	if !force {
		if err := e.admit(ctx, *job); err != nil {
			return types.RunResult{}, err
		}
		token := e.seq.Add(1)
		e.running.Store(token, *job)
		defer e.cleanup(context.WithoutCancel(ctx), token)
	}

	if err := e.updateState(ctx, *job); err != nil {
		if custom_errors.IsKind(err, custom_errors.KindNoEvent) {
			log.Debug().Msg("job was taken by another run")
		} else {
			log.Error().Err(err).Msg("failed to update job state, handler not invoked")
		}
		return types.RunResult{}, err
	}

	handlerErr := e.invoke(ctx, *job)
	elapsed := int64(e.timeNow().Sub(start) / time.Second)

	if handlerErr != nil {
		log.Error().Err(handlerErr).Msg("job handler failed")
		return types.RunResult{
			Success: false,
			Message: fmt.Sprintf("Job with action `%s` and arguments `%s` failed after %d seconds: %v",
				job.Action, args, elapsed, handlerErr),
		}, nil
	}

	log.Debug().Int64("elapsed", elapsed).Msg("job completed")
	return types.RunResult{
		Success: true,
		Message: fmt.Sprintf("Job with action `%s` and arguments `%s` completed in %d seconds.", job.Action, args, elapsed),
	}, nil
}

// admit takes a slot of the action lock, then of the global budget unless
// the job is internal. A refused global slot resets the action lock so it
// does not sit held until it goes stale.
func (e *Engine) admit(ctx context.Context, job types.Job) error {
	actionKey := lock.ActionKey(job.Action)
	if err := e.locks.Prime(ctx, actionKey, e.cfg.LockExpiry); err != nil {
		e.logger.Warn().Err(err).Str("action", job.Action).Msg("failed to prime action lock")
	}

	limit, _ := e.cfg.ActionLimit(job.Action)
	if !e.acquire(ctx, actionKey, limit) {
		return e.noFreeThreads(job)
	}

	if maintenance.IsInternal(job.Action) {
		return nil
	}

	if !e.acquire(ctx, lock.GlobalRunKey, e.cfg.GlobalLimit()) {
		if err := e.locks.Reset(ctx, actionKey, e.cfg.LockExpiry); err != nil {
			e.logger.Warn().Err(err).Str("action", job.Action).Msg("failed to reset action lock")
		}
		return e.noFreeThreads(job)
	}
	return nil
}

// acquire fails closed when the cache is unreachable.
func (e *Engine) acquire(ctx context.Context, key string, limit int) bool {
	ok, err := e.locks.CheckAndAcquire(ctx, key, limit, e.cfg.LockStaleness)
	if err != nil {
		e.logger.Warn().Err(err).Str("lock", key).Msg("lock unavailable, refusing run")
		return false
	}
	return ok
}

func (e *Engine) noFreeThreads(job types.Job) error {
	return custom_errors.NewRunError(custom_errors.KindNoFreeThreads,
		"No resources available to run the job with action `%s` and arguments `%s`.", job.Action, encodeArgs(job.Args))
}

// updateState moves the job on before its handler runs, so a crash inside
// the handler cannot leave it to run again. Recurring jobs move to their
// next slot in place; everything else is completed. Both writes only match
// the row as it was looked up; a run that loses the race for it is refused
// with no-event.
func (e *Engine) updateState(ctx context.Context, job types.Job) error {
	if !state.IsValidTransition(job.Status, state.StatusCompleted) {
		return e.taken(job)
	}

	if job.IsRecurring() {
		interval := job.Interval
		if live, ok := e.schedules.Interval(job.Schedule); ok {
			interval = live
		}
		if interval > 0 {
			next := events.NextTimestamp(job.Timestamp, interval, e.timeNow().Unix())
			_, err := e.store.CreateOrUpdate(ctx, types.JobParams{
				Timestamp:         next,
				Action:            job.Action,
				Args:              job.Args,
				Schedule:          job.Schedule,
				Interval:          interval,
				ExistingID:        job.ID,
				ExpectedTimestamp: job.Timestamp,
			}, true)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, store.ErrJobNotFound):
				return e.taken(job)
			case !errors.Is(err, store.ErrJobExists):
				return err
			}
			// The next firing is already pending as its own row.
		}
	}

	done, err := e.store.MarkCompletedByID(ctx, job.ID, events.IntentDefault)
	if err != nil {
		return err
	}
	if !done {
		return e.taken(job)
	}
	return nil
}

func (e *Engine) taken(job types.Job) error {
	return custom_errors.NewRunError(custom_errors.KindNoEvent,
		"Job with identifier `%s` could not be found.", job.Identifier())
}

// invoke runs every handler of the job's action. Panics are recovered into
// errors; a process that dies outright leaves its locks to go stale.
func (e *Engine) invoke(ctx context.Context, job types.Job) error {
	handlers := e.handlers.Handlers(job.Action)
	if len(handlers) == 0 {
		e.logger.Debug().Str("action", job.Action).Msg("no handler registered")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.LockStaleness)
	defer cancel()

	var errs []error
	for _, handler := range handlers {
		if err := call(ctx, handler, job.Args); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call(ctx context.Context, handler config.HandlerFunc, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, args...)
}

// cleanup releases the locks of one admitted run. It does nothing if
// Shutdown already released them.
func (e *Engine) cleanup(ctx context.Context, token uint64) {
	value, ok := e.running.LoadAndDelete(token)
	if !ok {
		return
	}
	e.releaseLocks(ctx, value.(types.Job))
}

// releaseLocks mirrors admit. Allow-listed actions may hold several slots
// and give back one; every other action holds at most one and is reset.
func (e *Engine) releaseLocks(ctx context.Context, job types.Job) {
	if !maintenance.IsInternal(job.Action) {
		if err := e.locks.Release(ctx, lock.GlobalRunKey, e.cfg.LockExpiry); err != nil {
			e.logger.Warn().Err(err).Msg("failed to release global run lock")
		}
	}

	actionKey := lock.ActionKey(job.Action)
	var err error
	if _, allowListed := e.cfg.ActionLimit(job.Action); allowListed {
		err = e.locks.Release(ctx, actionKey, e.cfg.LockExpiry)
	} else {
		err = e.locks.Reset(ctx, actionKey, e.cfg.LockExpiry)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("action", job.Action).Msg("failed to release action lock")
	}
}

// Running is the number of admitted runs whose locks are still held.
func (e *Engine) Running() int {
	n := 0
	e.running.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Shutdown releases the locks of runs still in flight. It is meant for a
// process that is giving up on them; it cannot help one that is killed.
func (e *Engine) Shutdown(ctx context.Context) {
	e.running.Range(func(key, _ any) bool {
		if value, ok := e.running.LoadAndDelete(key); ok {
			job := value.(types.Job)
			e.logger.Warn().Int64("job_id", job.ID).Str("action", job.Action).Msg("releasing locks of interrupted job")
			e.releaseLocks(ctx, job)
		}
		return true
	})
}

func encodeArgs(args []any) string {
	payload, err := types.EncodeArgs(args)
	if err != nil {
		return "[]"
	}
	return string(payload)
}
