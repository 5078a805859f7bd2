// Package queue selects the jobs a dispatch cycle should run.
package queue

import (
	"context"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/events"
	"github.com/RezaEskandarii/cronctl/internal/maintenance"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/rs/zerolog"
)

// Store is the part of the job store the builder reads and repairs.
type Store interface {
	GetSchedule(ctx context.Context) ([]events.Entry, error)
	GetJobByAttributes(ctx context.Context, attrs store.JobAttributes) (*types.Job, error)
	CreateOrUpdate(ctx context.Context, params types.JobParams, flush bool) (int64, error)
	MarkCompleted(ctx context.Context, timestamp int64, action, instance string, intent events.Intent) (bool, error)
	FlushCache(ctx context.Context) error
}

type Builder struct {
	store     Store
	handlers  *config.HandlerRegistry
	schedules *config.ScheduleRegistry
	cfg       *config.CronControlConfig
	logger    zerolog.Logger
	timeNow   func() time.Time
}

type Option func(*Builder)

func WithClock(timeNow func() time.Time) Option {
	return func(b *Builder) { b.timeNow = timeNow }
}

func NewBuilder(s Store, handlers *config.HandlerRegistry, schedules *config.ScheduleRegistry, cfg *config.CronControlConfig, logger zerolog.Logger, opts ...Option) *Builder {
	b := &Builder{
		store:     s,
		handlers:  handlers,
		schedules: schedules,
		cfg:       cfg,
		logger:    logger.With().Str("pkg", "queue").Logger(),
		timeNow:   time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build returns the due batch: ordinary entries, fairness-reduced to the
// batch size, followed by every due internal entry. Overdue entries are
// always included however late they are.
func (b *Builder) Build(ctx context.Context) ([]types.QueueEntry, error) {
	schedule, err := b.store.GetSchedule(ctx)
	if err != nil {
		return nil, err
	}

	now := b.timeNow()
	cutoff := now.Add(b.cfg.QueueWindow).Unix()

	var ordinary, internal []events.Entry
	orphaned := false
	for _, entry := range schedule {
		if entry.Timestamp > cutoff {
			continue
		}
		if !b.cfg.RunOrphans && !b.handlers.Has(entry.Action) {
			b.handleOrphan(ctx, entry, now.Unix())
			orphaned = true
			continue
		}
		if maintenance.IsInternal(entry.Action) {
			internal = append(internal, entry)
		} else {
			ordinary = append(ordinary, entry)
		}
	}
	if orphaned {
		if err := b.store.FlushCache(ctx); err != nil {
			b.logger.Warn().Err(err).Msg("failed to flush schedule cache after orphan cleanup")
		}
	}

	ordinary = Reduce(ordinary, b.cfg.BatchSize, b.cfg.FairnessSweeps)

	batch := make([]types.QueueEntry, 0, len(ordinary)+len(internal))
	for _, entry := range append(ordinary, internal...) {
		batch = append(batch, types.QueueEntry{
			Timestamp:    entry.Timestamp,
			ActionHashed: types.HashAction(entry.Action),
			Instance:     entry.Instance,
		})
	}
	return batch, nil
}

// handleOrphan removes a one-shot entry nothing consumes and pushes a
// recurring one to its next slot. Failures are logged; the entry is skipped
// this cycle either way.
func (b *Builder) handleOrphan(ctx context.Context, entry events.Entry, now int64) {
	log := b.logger.With().
		Str("action", entry.Action).
		Int64("timestamp", entry.Timestamp).
		Str("instance", entry.Instance).
		Logger()

	interval := entry.Interval
	if live, ok := b.schedules.Interval(entry.Schedule); ok && entry.IsRecurring() {
		interval = live
	}

	if !entry.IsRecurring() || interval <= 0 {
		if _, err := b.store.MarkCompleted(ctx, entry.Timestamp, entry.Action, entry.Instance, events.IntentUnscheduling); err != nil {
			log.Warn().Err(err).Msg("failed to remove orphaned job")
			return
		}
		log.Info().Msg("removed job without a handler")
		return
	}

	job, err := b.store.GetJobByAttributes(ctx, store.JobAttributes{
		Timestamp: entry.Timestamp,
		Action:    entry.Action,
		Instance:  entry.Instance,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to load orphaned job")
		return
	}
	next := events.NextTimestamp(entry.Timestamp, interval, now)
	_, err = b.store.CreateOrUpdate(ctx, types.JobParams{
		Timestamp:         next,
		Action:            job.Action,
		Args:              job.Args,
		Schedule:          job.Schedule,
		Interval:          interval,
		ExistingID:        job.ID,
		ExpectedTimestamp: job.Timestamp,
	}, false)
	if err != nil {
		log.Warn().Err(err).Msg("failed to reschedule orphaned job")
		return
	}
	log.Info().Int64("next", next).Msg("rescheduled job without a handler")
}
