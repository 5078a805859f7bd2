package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by NewViper, so
// "queue.batch_size" is read from CRONCTL_QUEUE_BATCH_SIZE.
const EnvPrefix = "CRONCTL"

// SetDefaults registers the default of every key Load reads.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("instance", "")

	v.SetDefault("storage.driver", DefaultStorageDriver.String())
	v.SetDefault("storage.postgres.url", "")
	v.SetDefault("storage.sqlite.path", "cronctl.db")

	v.SetDefault("cache.driver", DefaultCacheDriver.String())
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "")
	v.SetDefault("cache.schedule_ttl", DefaultScheduleCacheTTL)
	v.SetDefault("cache.bucket_size", DefaultCacheBucketSize)
	v.SetDefault("cache.max_buckets", DefaultMaxCacheBuckets)

	v.SetDefault("queue.window", DefaultQueueWindow)
	v.SetDefault("queue.batch_size", DefaultBatchSize)
	v.SetDefault("queue.fairness_sweeps", DefaultFairnessSweeps)
	v.SetDefault("queue.run_orphans", false)
	v.SetDefault("queue.rebuild_page_size", DefaultRebuildPageSize)
	v.SetDefault("queue.rebuild_max_pages", DefaultRebuildMaxPages)

	v.SetDefault("locks.global_concurrency", DefaultGlobalConcurrency)
	v.SetDefault("locks.max_concurrency", DefaultMaxConcurrency)
	v.SetDefault("locks.staleness", DefaultLockStaleness)
	v.SetDefault("locks.expiry", time.Duration(0))
	v.SetDefault("locks.action_concurrency", map[string]int{})

	v.SetDefault("runner.workers", DefaultWorkerCount)
	v.SetDefault("runner.fetch_interval", DefaultFetchInterval)
	v.SetDefault("runner.run_pause", DefaultRunPause)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "")
	v.SetDefault("rabbitmq.queue", "cron_control")
	v.SetDefault("rabbitmq.routing_key", "")
	v.SetDefault("rabbitmq.content_type", "application/json")
}

// NewViper reads configFile when given and the CRONCTL_* environment.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", configFile)
		}
	}
	return v, nil
}

// Load builds a config from v, applying extra options last. Validation
// errors from every option are reported together.
func Load(v *viper.Viper, extra ...Option) (*CronControlConfig, error) {
	var opts []Option

	storage := v.GetString("storage.driver")
	switch driver, ok := ParseStorageDriver(storage); {
	case !ok:
		return nil, errors.Newf("unknown storage driver %q", storage)
	case driver == Postgres:
		opts = append(opts, WithPostgresConfig(PostgresConfig{ConnectionUrl: v.GetString("storage.postgres.url")}))
	case driver == SQLite:
		opts = append(opts, WithSQLiteConfig(SQLiteConfig{Path: v.GetString("storage.sqlite.path")}))
	}

	cacheDriver := v.GetString("cache.driver")
	switch driver, ok := ParseCacheDriver(cacheDriver); {
	case !ok:
		return nil, errors.Newf("unknown cache driver %q", cacheDriver)
	case driver == Redis:
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:   v.GetString("cache.redis.address"),
			Password:  v.GetString("cache.redis.password"),
			DB:        v.GetInt("cache.redis.db"),
			KeyPrefix: v.GetString("cache.redis.key_prefix"),
		}))
	case driver == Memory:
		opts = append(opts, WithMemoryCache())
	}

	opts = append(opts,
		WithScheduleCache(v.GetDuration("cache.schedule_ttl"), v.GetInt("cache.bucket_size"), v.GetInt("cache.max_buckets")),
		WithQueueWindow(v.GetDuration("queue.window")),
		WithBatchSize(v.GetInt("queue.batch_size")),
		WithFairnessSweeps(v.GetInt("queue.fairness_sweeps")),
		WithRunOrphans(v.GetBool("queue.run_orphans")),
		WithRebuildLimits(v.GetInt("queue.rebuild_page_size"), v.GetInt("queue.rebuild_max_pages")),
		WithGlobalConcurrency(v.GetInt("locks.global_concurrency")),
		WithMaxConcurrency(v.GetInt("locks.max_concurrency")),
		WithLockStaleness(v.GetDuration("locks.staleness")),
		WithLockExpiry(v.GetDuration("locks.expiry")),
		WithWorkerCount(v.GetInt("runner.workers")),
		WithFetchInterval(v.GetDuration("runner.fetch_interval")),
		WithRunPause(v.GetDuration("runner.run_pause")),
	)
	for action, limit := range v.GetStringMap("locks.action_concurrency") {
		opts = append(opts, WithActionConcurrency(action, toInt(limit)))
	}

	if url := v.GetString("rabbitmq.url"); url != "" {
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:         url,
			Exchange:    v.GetString("rabbitmq.exchange"),
			Queue:       v.GetString("rabbitmq.queue"),
			RoutingKey:  v.GetString("rabbitmq.routing_key"),
			ContentType: v.GetString("rabbitmq.content_type"),
		}))
	}

	return NewCronControlConfig(v.GetString("instance"), append(opts, extra...)...)
}

func toInt(value any) int {
	switch n := value.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
