// Package maintenance defines the scheduler's own recurring jobs. They run
// outside the shared concurrency budget and always follow ordinary jobs in a
// batch.
package maintenance

import (
	"context"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const (
	ActionPurgeCompleted = "cron_control_purge_completed_events"
	ActionFlushCache     = "cron_control_flush_schedule_cache"
	ActionReportBacklog  = "cron_control_report_backlog"

	ScheduleMinute     = "cron_control_minute"
	ScheduleTenMinutes = "cron_control_ten_minutes"
	ScheduleDaily      = "daily"
)

type InternalJob struct {
	Action   string
	Schedule string
}

var InternalJobs = []InternalJob{
	{Action: ActionPurgeCompleted, Schedule: ScheduleTenMinutes},
	{Action: ActionFlushCache, Schedule: ScheduleDaily},
	{Action: ActionReportBacklog, Schedule: ScheduleMinute},
}

var internalSchedules = []config.ScheduleSpec{
	{Name: ScheduleMinute, Interval: time.Minute},
	{Name: ScheduleTenMinutes, Interval: 10 * time.Minute},
}

var internalHashed = func() map[string]struct{} {
	hashed := make(map[string]struct{}, len(InternalJobs))
	for _, job := range InternalJobs {
		hashed[types.HashAction(job.Action)] = struct{}{}
	}
	return hashed
}()

func IsInternal(action string) bool {
	for _, job := range InternalJobs {
		if job.Action == action {
			return true
		}
	}
	return false
}

// IsInternalHashed is IsInternal for an action hash.
func IsInternalHashed(actionHashed string) bool {
	_, ok := internalHashed[actionHashed]
	return ok
}

// Store is what the internal jobs need from the job store.
type Store interface {
	NextScheduled(ctx context.Context, action string, args []any) (*types.Job, error)
	Schedule(ctx context.Context, params types.JobParams) (int64, error)
	PurgeCompleted(ctx context.Context, countFirst bool) (int64, error)
	FlushCache(ctx context.Context) error
	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)
}

type Manager struct {
	store     Store
	schedules *config.ScheduleRegistry
	logger    zerolog.Logger
	timeNow   func() time.Time
}

func NewManager(s Store, schedules *config.ScheduleRegistry, logger zerolog.Logger) *Manager {
	return &Manager{
		store:     s,
		schedules: schedules,
		logger:    logger.With().Str("pkg", "maintenance").Logger(),
		timeNow:   time.Now,
	}
}

// Register adds the internal schedules and handlers.
func (m *Manager) Register(handlers *config.HandlerRegistry) error {
	for _, spec := range internalSchedules {
		if err := m.schedules.Register(spec); err != nil {
			return err
		}
	}
	registrations := map[string]config.HandlerFunc{
		ActionPurgeCompleted: m.purgeCompleted,
		ActionFlushCache:     m.flushCache,
		ActionReportBacklog:  m.reportBacklog,
	}
	for _, job := range InternalJobs {
		if err := handlers.Register(job.Action, registrations[job.Action]); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleInternalJobs creates each internal job that has no pending firing.
// Runners race on startup, so a duplicate is not an error.
func (m *Manager) ScheduleInternalJobs(ctx context.Context) error {
	now := m.timeNow().Unix()
	for _, job := range InternalJobs {
		next, err := m.store.NextScheduled(ctx, job.Action, nil)
		if err != nil {
			return err
		}
		if next != nil {
			continue
		}

		interval, _ := m.schedules.Interval(job.Schedule)
		_, err = m.store.Schedule(ctx, types.JobParams{
			Timestamp: now,
			Action:    job.Action,
			Schedule:  job.Schedule,
			Interval:  interval,
		})
		if err != nil && !errors.Is(err, store.ErrJobExists) {
			return errors.Wrapf(err, "failed to schedule %s", job.Action)
		}
		m.logger.Debug().Str("action", job.Action).Msg("internal job scheduled")
	}
	return nil
}

func (m *Manager) purgeCompleted(ctx context.Context, _ ...any) error {
	purged, err := m.store.PurgeCompleted(ctx, true)
	if err != nil {
		return err
	}
	if purged > 0 {
		m.logger.Info().Int64("purged", purged).Msg("completed jobs purged")
	}
	return nil
}

func (m *Manager) flushCache(ctx context.Context, _ ...any) error {
	return m.store.FlushCache(ctx)
}

func (m *Manager) reportBacklog(ctx context.Context, _ ...any) error {
	counts, err := m.store.CountAllJobsGroupedByStatus(ctx)
	if err != nil {
		return err
	}
	m.logger.Info().
		Int("pending", counts[state.StatusPending]).
		Int("running", counts[state.StatusRunning]).
		Int("completed", counts[state.StatusCompleted]).
		Msg("job backlog")
	return nil
}
