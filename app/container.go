package app

import (
	"context"
	"database/sql"

	"github.com/RezaEskandarii/cronctl/client"
	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/RezaEskandarii/cronctl/internal/db"
	"github.com/RezaEskandarii/cronctl/internal/dispatch"
	"github.com/RezaEskandarii/cronctl/internal/events"
	"github.com/RezaEskandarii/cronctl/internal/executor"
	"github.com/RezaEskandarii/cronctl/internal/lock"
	"github.com/RezaEskandarii/cronctl/internal/maintenance"
	"github.com/RezaEskandarii/cronctl/internal/message_broaker"
	"github.com/RezaEskandarii/cronctl/internal/queue"
	"github.com/RezaEskandarii/cronctl/internal/store/sqlstore"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.CronControlConfig
	Logger zerolog.Logger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis *redis.Client
	Cache cache.Cache

	Jobs   *sqlstore.JobStore
	Locks  lock.DistributedLockManager
	Events *events.Store

	Handlers    *config.HandlerRegistry
	Schedules   *config.ScheduleRegistry
	Maintenance *maintenance.Manager

	Queue      *queue.Builder
	Engine     *executor.Engine
	Dispatcher *dispatch.Dispatcher

	// Broker is nil unless queue fan-out is enabled.
	Broker message_broaker.MessageBroker
	Runner *client.Runner

	ownsDB    bool
	ownsRedis bool
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
func NewContainer(ctx context.Context, cfg *config.CronControlConfig, logger zerolog.Logger, opts ...ContainerOption) (_ *Container, err error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c := &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	dialect := opt.dialect
	if opt.db != nil {
		c.DB = opt.db
	} else {
		c.DB, dialect, err = db.Open(cfg)
		if err != nil {
			return nil, err
		}
		c.ownsDB = true
	}
	if err = db.Init(ctx, c.DB, dialect, logger); err != nil {
		return nil, errors.Wrap(err, "init storage")
	}
	c.Jobs = sqlstore.NewJobStore(c.DB, dialect)

	if c.Cache, err = c.initCache(ctx, opt); err != nil {
		return nil, errors.Wrap(err, "init cache")
	}
	c.Locks = lock.NewCacheLockManager(c.Cache,
		lock.WithMaxLimit(cfg.MaxConcurrency),
		lock.WithExpiry(cfg.LockExpiry),
		lock.WithLogger(logger),
	)
	c.Events = events.NewStore(c.Jobs, c.Locks, c.Cache, cfg, logger)

	c.Handlers = config.NewHandlerRegistry()
	for _, h := range cfg.Handlers {
		if err = c.Handlers.Register(h.Action, h.Func); err != nil {
			return nil, err
		}
	}
	c.Schedules = config.NewScheduleRegistry()
	for _, s := range cfg.Schedules {
		if err = c.Schedules.Register(s); err != nil {
			return nil, err
		}
	}

	c.Maintenance = maintenance.NewManager(c.Events, c.Schedules, logger)
	if err = c.Maintenance.Register(c.Handlers); err != nil {
		return nil, err
	}

	c.Queue = queue.NewBuilder(c.Events, c.Handlers, c.Schedules, cfg, logger)
	c.Engine = executor.NewEngine(c.Events, c.Locks, c.Handlers, c.Schedules, cfg, logger)
	if err = c.Engine.Prime(ctx); err != nil {
		return nil, errors.Wrap(err, "prime run lock")
	}
	c.Dispatcher = dispatch.NewDispatcher(c.Queue, c.Engine, logger)

	var runnerOpts []client.Option
	if cfg.UseQueueFanout {
		c.Broker = opt.broker
		if c.Broker == nil {
			rabbit, err := message_broaker.NewRabbitMQ(*cfg.RabbitMQConfig)
			if err != nil {
				return nil, errors.Wrap(err, "init rabbitmq")
			}
			c.Broker = rabbit
		}
		runnerOpts = append(runnerOpts, client.WithBroker(c.Broker), client.WithPublishGate(c.Cache))
	}
	c.Runner = client.NewRunner(c.Dispatcher, cfg, logger, runnerOpts...)

	return c, nil
}

func (c *Container) initCache(ctx context.Context, opt *containerConfig) (cache.Cache, error) {
	switch c.Config.CacheDriver {
	case config.Memory:
		return cache.NewMemoryCache(), nil
	case config.Redis:
		c.Redis = opt.redis
		if c.Redis == nil {
			c.Redis = redis.NewClient(&redis.Options{
				Addr:     c.Config.RedisConfig.Address,
				Password: c.Config.RedisConfig.Password,
				DB:       c.Config.RedisConfig.DB,
			})
			c.ownsRedis = true
		}
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return nil, errors.Wrap(err, "ping redis")
		}
		return cache.NewRedisCache(c.Redis, c.Config.RedisConfig.KeyPrefix), nil
	default:
		return nil, errors.Newf("unsupported cache driver: %v", c.Config.CacheDriver)
	}
}

// Start schedules the internal jobs and runs the runner until ctx is done.
func (c *Container) Start(ctx context.Context) error {
	if err := c.Maintenance.ScheduleInternalJobs(ctx); err != nil {
		return errors.Wrap(err, "schedule internal jobs")
	}
	return c.Runner.Start(ctx)
}

// Close releases the locks of runs still in flight and closes every
// connection the container opened.
func (c *Container) Close(ctx context.Context) error {
	if c.Engine != nil {
		c.Engine.Shutdown(ctx)
	}

	var errs []error
	if c.Broker != nil {
		errs = append(errs, c.Broker.Close())
	}
	if c.Redis != nil && c.ownsRedis {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil && c.ownsDB {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
