// Package client is the in-process consumer of the dispatch boundary: it
// lists due jobs on a fixed cadence and runs them on a bounded worker pool.
package client

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RezaEskandarii/cronctl/custom_errors"
	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/RezaEskandarii/cronctl/internal/message_broaker"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const publishGatePrefix = "cron_control_publish_"

// Dispatcher is the boundary the runner drives.
type Dispatcher interface {
	ListDueJobs(ctx context.Context) ([]types.QueueEntry, error)
	RunJob(ctx context.Context, timestamp int64, actionHashed, instance string, force bool) (types.RunResult, error)
}

// Stats counts run outcomes since the runner was created.
type Stats struct {
	Succeeded int64
	Failed    int64
	Refused   int64
	Errored   int64
}

type Runner struct {
	dispatcher Dispatcher
	broker     message_broaker.MessageBroker
	gate       cache.Cache
	cfg        *config.CronControlConfig
	logger     zerolog.Logger
	timeNow    func() time.Time

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	inflight sync.Map
	wg       sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
	refused   atomic.Int64
	errored   atomic.Int64
}

type Option func(*Runner)

// WithBroker switches the runner to fan-out: listed entries are published
// and every runner consuming the queue executes them.
func WithBroker(broker message_broaker.MessageBroker) Option {
	return func(r *Runner) { r.broker = broker }
}

// WithPublishGate lets one runner per fetch interval publish the due batch.
// Without it every runner publishes and the duplicates resolve as no-event.
func WithPublishGate(c cache.Cache) Option {
	return func(r *Runner) { r.gate = c }
}

func WithClock(timeNow func() time.Time) Option {
	return func(r *Runner) { r.timeNow = timeNow }
}

func NewRunner(d Dispatcher, cfg *config.CronControlConfig, logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		dispatcher: d,
		cfg:        cfg,
		logger:     logger.With().Str("pkg", "runner").Str("instance", cfg.Instance).Logger(),
		timeNow:    time.Now,
		sem:        semaphore.NewWeighted(int64(cfg.WorkerCount)),
		limiter:    newLimiter(cfg.RunPause, cfg.WorkerCount),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// newLimiter spreads runs so each worker pauses for roughly pause between
// two runs.
func newLimiter(pause time.Duration, workers int) *rate.Limiter {
	if pause <= 0 {
		return rate.NewLimiter(rate.Inf, workers)
	}
	return rate.NewLimiter(rate.Every(pause/time.Duration(workers)), workers)
}

// Start lists due jobs immediately and then at every multiple of the fetch
// interval until ctx is done. It returns once in-flight runs have finished.
func (r *Runner) Start(ctx context.Context) error {
	r.logger.Info().
		Int("workers", r.cfg.WorkerCount).
		Dur("fetch_interval", r.cfg.FetchInterval).
		Bool("fanout", r.broker != nil).
		Msg("runner started")

	g, gctx := errgroup.WithContext(ctx)

	if r.broker != nil {
		entries, err := message_broaker.ConsumeEntries(gctx, r.broker, r.logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			for entry := range entries {
				if err := r.dispatch(gctx, entry); err != nil {
					return nil
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		for {
			r.tick(gctx)

			timer := time.NewTimer(r.untilNextTick())
			select {
			case <-gctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	})

	err := g.Wait()
	r.wg.Wait()
	r.logger.Info().Msg("runner stopped")
	return err
}

// RunOnce lists the due batch once and waits for the runs it started.
func (r *Runner) RunOnce(ctx context.Context) {
	r.tick(ctx)
	r.wg.Wait()
}

func (r *Runner) Stats() Stats {
	return Stats{
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		Refused:   r.refused.Load(),
		Errored:   r.errored.Load(),
	}
}

func (r *Runner) untilNextTick() time.Duration {
	now := r.timeNow()
	return now.Truncate(r.cfg.FetchInterval).Add(r.cfg.FetchInterval).Sub(now)
}

func (r *Runner) tick(ctx context.Context) {
	entries, err := r.dispatcher.ListDueJobs(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list due jobs")
		return
	}
	if len(entries) == 0 {
		return
	}
	r.logger.Debug().Int("entries", len(entries)).Msg("due jobs listed")

	if r.broker != nil {
		r.publish(ctx, entries)
		return
	}

	for _, entry := range entries {
		if err := r.dispatch(ctx, entry); err != nil {
			return
		}
	}
}

func (r *Runner) publish(ctx context.Context, entries []types.QueueEntry) {
	if r.gate != nil {
		slot := r.timeNow().Truncate(r.cfg.FetchInterval).Unix()
		won, err := r.gate.Add(ctx, publishGatePrefix+strconv.FormatInt(slot, 10), r.cfg.Instance, r.cfg.FetchInterval)
		if err != nil {
			r.logger.Warn().Err(err).Msg("publish gate unavailable, publishing anyway")
		} else if !won {
			return
		}
	}

	n, err := message_broaker.PublishEntries(ctx, r.broker, entries)
	if err != nil {
		r.logger.Error().Err(err).Int("published", n).Int("entries", len(entries)).Msg("failed to publish due jobs")
		return
	}
	r.logger.Debug().Int("published", n).Msg("due jobs published")
}

// dispatch hands entry to a worker, blocking while all workers are busy.
// Entries already running in this process are skipped. It fails only when
// ctx is done.
func (r *Runner) dispatch(ctx context.Context, entry types.QueueEntry) error {
	if entry.Timestamp > r.timeNow().Unix() {
		r.logger.Debug().Int64("timestamp", entry.Timestamp).Msg("skipping job not yet due")
		return nil
	}

	key := types.Job{Timestamp: entry.Timestamp, ActionHashed: entry.ActionHashed, Instance: entry.Instance}.Identifier()
	if _, running := r.inflight.LoadOrStore(key, struct{}{}); running {
		return nil
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.inflight.Delete(key)
		return err
	}
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer r.inflight.Delete(key)

		if err := r.limiter.Wait(ctx); err != nil {
			return
		}
		// A started run is allowed to finish after shutdown begins.
		r.run(context.WithoutCancel(ctx), entry)
	}()
	return nil
}

func (r *Runner) run(ctx context.Context, entry types.QueueEntry) {
	log := r.logger.With().
		Int64("timestamp", entry.Timestamp).
		Str("action_hashed", entry.ActionHashed).
		Str("instance", entry.Instance).
		Logger()

	result, err := r.dispatcher.RunJob(ctx, entry.Timestamp, entry.ActionHashed, entry.Instance, false)
	if err != nil {
		kind, refused := custom_errors.KindOf(err)
		switch {
		case refused && kind == custom_errors.KindNoFreeThreads:
			r.refused.Add(1)
			log.Info().Err(err).Msg("run refused")
		case refused && kind.Retryable(), refused && kind == custom_errors.KindNoEvent:
			r.refused.Add(1)
			log.Debug().Err(err).Msg("run skipped")
		default:
			r.errored.Add(1)
			log.Error().Err(err).Msg("run failed")
		}
		return
	}

	if !result.Success {
		r.failed.Add(1)
		log.Warn().Msg(result.Message)
		return
	}
	r.succeeded.Add(1)
	log.Info().Msg(result.Message)
}
