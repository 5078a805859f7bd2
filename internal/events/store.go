// Package events is the job store the scheduler works against. It wraps the
// durable job table with creation suspension, duplicate suppression, lock
// priming and the cached view of the pending schedule.
package events

import (
	"context"
	"sync/atomic"

	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/RezaEskandarii/cronctl/internal/lock"
	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var ErrCreationSuspended = errors.New("events: job creation is suspended")

// Intent tells a completion which operation it is part of.
type Intent int

const (
	// IntentDefault flushes the schedule cache after the write.
	IntentDefault Intent = iota
	// IntentUnscheduling is one step of a bulk unschedule. The caller flushes
	// the cache once when the sweep is over.
	IntentUnscheduling
)

func (i Intent) String() string {
	if i == IntentUnscheduling {
		return "unscheduling"
	}
	return "default"
}

const unschedulePageSize = 500

type Store struct {
	jobs      store.JobStore
	locks     lock.DistributedLockManager
	schedule  *ScheduleCache
	cfg       *config.CronControlConfig
	logger    zerolog.Logger
	suspended atomic.Bool
}

func NewStore(jobs store.JobStore, locks lock.DistributedLockManager, c cache.Cache, cfg *config.CronControlConfig, logger zerolog.Logger) *Store {
	logger = logger.With().Str("pkg", "events").Logger()
	return &Store{
		jobs:     jobs,
		locks:    locks,
		schedule: NewScheduleCache(c, cfg.ScheduleCacheTTL, cfg.CacheBucketSize, cfg.MaxCacheBuckets, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// SuspendCreation blocks every create or update until ResumeCreation.
// Meant to bracket bulk administrative work.
func (s *Store) SuspendCreation() { s.suspended.Store(true) }

func (s *Store) ResumeCreation() { s.suspended.Store(false) }

func (s *Store) CreationSuspended() bool { return s.suspended.Load() }

// CreateOrUpdate writes a job through to the table. With flush unset the
// caller is doing bulk work and owns invalidating the schedule cache.
func (s *Store) CreateOrUpdate(ctx context.Context, params types.JobParams, flush bool) (int64, error) {
	if s.CreationSuspended() {
		return 0, ErrCreationSuspended
	}
	if params.Action == "" {
		return 0, errors.New("job action is required")
	}

	id, err := s.jobs.CreateOrUpdate(ctx, params)
	if err != nil {
		return 0, err
	}
	if flush {
		s.flush(ctx)
	}
	return id, nil
}

// Schedule creates a pending firing unless the same timestamp, action and
// args are already pending, in which case it returns store.ErrJobExists.
func (s *Store) Schedule(ctx context.Context, params types.JobParams) (int64, error) {
	if s.CreationSuspended() {
		return 0, ErrCreationSuspended
	}
	instance, err := types.HashArgs(params.Args)
	if err != nil {
		return 0, err
	}

	if params.ExistingID == 0 {
		existing, err := s.jobs.GetJobByAttributes(ctx, store.JobAttributes{
			Timestamp: params.Timestamp,
			Action:    params.Action,
			Instance:  instance,
		})
		switch {
		case err == nil:
			return existing.ID, errors.Wrapf(store.ErrJobExists, "job %s", existing.Identifier())
		case !errors.Is(err, store.ErrJobNotFound):
			return 0, err
		}
	}

	if err := s.locks.Prime(ctx, lock.ActionKey(params.Action), s.cfg.LockExpiry); err != nil {
		s.logger.Warn().Err(err).Str("action", params.Action).Msg("failed to prime action lock")
	}

	return s.CreateOrUpdate(ctx, params, true)
}

// Reschedule moves an existing job to timestamp, keeping its row.
func (s *Store) Reschedule(ctx context.Context, job types.Job, timestamp int64) (int64, error) {
	return s.CreateOrUpdate(ctx, types.JobParams{
		Timestamp:  timestamp,
		Action:     job.Action,
		Args:       job.Args,
		Schedule:   job.Schedule,
		Interval:   job.Interval,
		ExistingID: job.ID,
	}, true)
}

// MarkCompleted completes the pending firing with the given identity. It
// reports false when there is none.
func (s *Store) MarkCompleted(ctx context.Context, timestamp int64, action, instance string, intent Intent) (bool, error) {
	job, err := s.jobs.GetJobByAttributes(ctx, store.JobAttributes{
		Timestamp: timestamp,
		Action:    action,
		Instance:  instance,
	})
	if errors.Is(err, store.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.MarkCompletedByID(ctx, job.ID, intent)
}

func (s *Store) MarkCompletedByID(ctx context.Context, id int64, intent Intent) (bool, error) {
	done, err := s.jobs.MarkCompletedByID(ctx, id)
	if err != nil {
		return false, err
	}
	if done && intent == IntentDefault {
		s.flush(ctx)
	}
	return done, nil
}

// Unschedule removes one firing, identified by its args.
func (s *Store) Unschedule(ctx context.Context, timestamp int64, action string, args []any, intent Intent) (bool, error) {
	instance, err := types.HashArgs(args)
	if err != nil {
		return false, err
	}
	return s.MarkCompleted(ctx, timestamp, action, instance, intent)
}

// UnscheduleHook removes every pending firing of action. A nil args matches
// all of them; otherwise only firings with exactly these args go. Returns
// how many were removed.
func (s *Store) UnscheduleHook(ctx context.Context, action string, args []any) (int, error) {
	var instance string
	if args != nil {
		var err error
		if instance, err = types.HashArgs(args); err != nil {
			return 0, err
		}
	}

	removed := 0
	defer func() {
		if removed > 0 {
			s.flush(ctx)
		}
	}()

	for {
		// Completed rows drop out of the pending listing, so the first page
		// is always the next one.
		batch, err := s.jobs.GetJobsByAction(ctx, action, instance, unschedulePageSize)
		if err != nil {
			return removed, err
		}
		before := removed
		for _, job := range batch {
			done, err := s.MarkCompletedByID(ctx, job.ID, IntentUnscheduling)
			if err != nil {
				return removed, err
			}
			if done {
				removed++
			}
		}
		if len(batch) < unschedulePageSize || removed == before {
			return removed, nil
		}
	}
}

// NextScheduled returns the earliest pending firing of action. A nil args
// matches any instance.
func (s *Store) NextScheduled(ctx context.Context, action string, args []any) (*types.Job, error) {
	var instance string
	if args != nil {
		var err error
		if instance, err = types.HashArgs(args); err != nil {
			return nil, err
		}
	}
	jobs, err := s.jobs.GetJobsByAction(ctx, action, instance, 1)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// DeleteByID is the administrative removal of a pending job.
func (s *Store) DeleteByID(ctx context.Context, id int64) (bool, error) {
	return s.MarkCompletedByID(ctx, id, IntentDefault)
}

func (s *Store) GetJobByID(ctx context.Context, id int64) (*types.Job, error) {
	return s.jobs.GetJobByID(ctx, id)
}

func (s *Store) GetJobByAttributes(ctx context.Context, attrs store.JobAttributes) (*types.Job, error) {
	return s.jobs.GetJobByAttributes(ctx, attrs)
}

func (s *Store) GetJobs(ctx context.Context, filter state.StatusFilter, quantity, page int, forceSort bool) ([]types.Job, error) {
	return s.jobs.GetJobs(ctx, filter, quantity, page, forceSort)
}

func (s *Store) ListJobs(ctx context.Context, filter state.StatusFilter, page, pageSize int) (*types.PaginationResult[types.Job], error) {
	return s.jobs.Paginate(ctx, filter, page, pageSize)
}

func (s *Store) CountByStatus(ctx context.Context, filter state.StatusFilter) (int, error) {
	return s.jobs.CountByStatus(ctx, filter)
}

func (s *Store) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	return s.jobs.CountAllJobsGroupedByStatus(ctx)
}

// PurgeCompleted leaves the schedule cache alone; it only holds pending jobs.
func (s *Store) PurgeCompleted(ctx context.Context, countFirst bool) (int64, error) {
	return s.jobs.PurgeCompleted(ctx, countFirst)
}

// GetSchedule returns the flattened pending schedule, rebuilding and caching
// it on a miss.
func (s *Store) GetSchedule(ctx context.Context) ([]Entry, error) {
	entries, ok, err := s.schedule.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("schedule cache unavailable, reading from the table")
	}
	if ok {
		return entries, nil
	}

	entries, err = s.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.schedule.Store(ctx, entries); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache schedule")
	}
	return entries, nil
}

func (s *Store) FlushCache(ctx context.Context) error {
	return s.schedule.Flush(ctx)
}

// flush is best effort. A stale cache is bounded by its TTL.
func (s *Store) flush(ctx context.Context) {
	if err := s.schedule.Flush(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to flush schedule cache")
	}
}
