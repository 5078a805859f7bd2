package lock

import (
	"context"
	"strconv"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const keyPrefix = "cron_control_lock_"

var _ DistributedLockManager = (*CacheLockManager)(nil)

// CacheLockManager keeps each lock as a counter key and a paired timestamp
// key in a Cache.
type CacheLockManager struct {
	cache    cache.Cache
	maxLimit int
	expiry   time.Duration
	timeNow  func() time.Time
	logger   zerolog.Logger
}

type Option func(*CacheLockManager)

// WithMaxLimit caps every limit passed to CheckAndAcquire.
func WithMaxLimit(limit int) Option {
	return func(m *CacheLockManager) {
		if limit > 0 {
			m.maxLimit = limit
		}
	}
}

// WithExpiry is the TTL applied when a call passes a zero expiry.
func WithExpiry(expiry time.Duration) Option {
	return func(m *CacheLockManager) { m.expiry = expiry }
}

func WithClock(timeNow func() time.Time) Option {
	return func(m *CacheLockManager) { m.timeNow = timeNow }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *CacheLockManager) { m.logger = logger.With().Str("pkg", "lock").Logger() }
}

func NewCacheLockManager(c cache.Cache, opts ...Option) *CacheLockManager {
	m := &CacheLockManager{cache: c, timeNow: time.Now, logger: zerolog.Nop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func valueKey(key string) string { return keyPrefix + key }

func timestampKey(key string) string { return keyPrefix + "ts_" + key }

func (m *CacheLockManager) ttl(expiry time.Duration) time.Duration {
	if expiry > 0 {
		return expiry
	}
	return m.expiry
}

func (m *CacheLockManager) now() string {
	return strconv.FormatInt(m.timeNow().Unix(), 10)
}

func (m *CacheLockManager) Prime(ctx context.Context, key string, expiry time.Duration) error {
	ttl := m.ttl(expiry)
	if _, err := m.cache.Add(ctx, valueKey(key), "0", ttl); err != nil {
		return errors.Wrapf(err, "failed to prime lock %s", key)
	}
	if _, err := m.cache.Add(ctx, timestampKey(key), m.now(), ttl); err != nil {
		return errors.Wrapf(err, "failed to prime lock %s", key)
	}
	return nil
}

func (m *CacheLockManager) CheckAndAcquire(ctx context.Context, key string, limit int, staleness time.Duration) (bool, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if m.maxLimit > 0 && limit > m.maxLimit {
		limit = m.maxLimit
	}
	if staleness <= 0 {
		staleness = DefaultStaleness
	}

	value, touched, err := m.Inspect(ctx, key)
	if err != nil {
		return false, err
	}

	if m.timeNow().Sub(touched) > staleness {
		if err := m.Reset(ctx, key, 0); err != nil {
			return false, err
		}
		if _, err := m.cache.Incr(ctx, valueKey(key)); err != nil {
			return false, errors.Wrapf(err, "failed to acquire lock %s", key)
		}
		return true, nil
	}

	if value >= int64(limit) {
		return false, nil
	}

	held, err := m.cache.Incr(ctx, valueKey(key))
	if err != nil {
		return false, errors.Wrapf(err, "failed to acquire lock %s", key)
	}
	// Another runner took the last slot between the read and the increment.
	if held > int64(limit) {
		if _, err := m.cache.Decr(ctx, valueKey(key)); err != nil {
			return false, errors.Wrapf(err, "failed to back out of lock %s", key)
		}
		return false, nil
	}
	// The slot is held either way; a missed touch only makes it age sooner.
	if err := m.cache.Set(ctx, timestampKey(key), m.now(), m.ttl(0)); err != nil {
		m.logger.Debug().Err(err).Str("lock", key).Msg("failed to touch lock timestamp")
	}
	return true, nil
}

func (m *CacheLockManager) Release(ctx context.Context, key string, expiry time.Duration) error {
	value, _, err := m.Inspect(ctx, key)
	if err != nil {
		return err
	}

	if value > 1 {
		if _, err := m.cache.Decr(ctx, valueKey(key)); err != nil {
			return errors.Wrapf(err, "failed to release lock %s", key)
		}
	} else if err := m.cache.Set(ctx, valueKey(key), "0", m.ttl(expiry)); err != nil {
		return errors.Wrapf(err, "failed to release lock %s", key)
	}

	if err := m.cache.Set(ctx, timestampKey(key), m.now(), m.ttl(expiry)); err != nil {
		return errors.Wrapf(err, "failed to touch lock %s", key)
	}
	return nil
}

func (m *CacheLockManager) Reset(ctx context.Context, key string, expiry time.Duration) error {
	ttl := m.ttl(expiry)
	if err := m.cache.Set(ctx, valueKey(key), "0", ttl); err != nil {
		return errors.Wrapf(err, "failed to reset lock %s", key)
	}
	if err := m.cache.Set(ctx, timestampKey(key), m.now(), ttl); err != nil {
		return errors.Wrapf(err, "failed to reset lock %s", key)
	}
	return nil
}

// Inspect treats a missing counter as zero and a missing timestamp as the
// epoch, which makes an unprimed lock stale.
func (m *CacheLockManager) Inspect(ctx context.Context, key string) (int64, time.Time, error) {
	raw, ok, err := m.cache.Get(ctx, valueKey(key))
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "failed to read lock %s", key)
	}
	var value int64
	if ok && raw != "" {
		if value, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, time.Time{}, errors.Wrapf(err, "corrupt lock value for %s", key)
		}
	}

	raw, ok, err = m.cache.Get(ctx, timestampKey(key))
	if err != nil {
		return 0, time.Time{}, errors.Wrapf(err, "failed to read lock %s", key)
	}
	var touched int64
	if ok && raw != "" {
		if touched, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return 0, time.Time{}, errors.Wrapf(err, "corrupt lock timestamp for %s", key)
		}
	}
	return value, time.Unix(touched, 0), nil
}
