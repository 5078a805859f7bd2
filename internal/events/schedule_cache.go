package events

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ScheduleCacheKey holds either the whole schedule or the index of its shards.
const ScheduleCacheKey = "cron_control_schedule"

const inlineVersion = 2

// cacheRecord is stored under ScheduleCacheKey. Version is set when the
// entries are inline; otherwise the record indexes Buckets shards.
type cacheRecord struct {
	Version     int     `json:"version,omitempty"`
	Entries     []Entry `json:"entries,omitempty"`
	Incrementer string  `json:"incrementer,omitempty"`
	Buckets     int     `json:"buckets,omitempty"`
	EventCount  int     `json:"event_count,omitempty"`
}

// ScheduleCache keeps the flattened schedule in a Cache, splitting it across
// shards when it outgrows one entry.
type ScheduleCache struct {
	cache      cache.Cache
	ttl        time.Duration
	bucketSize int
	maxBuckets int
	logger     zerolog.Logger
	timeNow    func() time.Time
}

func NewScheduleCache(c cache.Cache, ttl time.Duration, bucketSize, maxBuckets int, logger zerolog.Logger) *ScheduleCache {
	return &ScheduleCache{
		cache:      c,
		ttl:        ttl,
		bucketSize: bucketSize,
		maxBuckets: maxBuckets,
		logger:     logger,
		timeNow:    time.Now,
	}
}

func shardKey(incrementer string, slice int) string {
	sum := md5.Sum([]byte(ScheduleCacheKey + incrementer + strconv.Itoa(slice)))
	return hex.EncodeToString(sum[:])
}

// Load returns the cached schedule. Any missing or short shard is a miss.
func (c *ScheduleCache) Load(ctx context.Context) ([]Entry, bool, error) {
	raw, ok, err := c.cache.Get(ctx, ScheduleCacheKey)
	if err != nil || !ok {
		return nil, false, err
	}

	var record cacheRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		c.logger.Warn().Err(err).Msg("discarding unreadable schedule cache")
		return nil, false, nil
	}
	if record.Version != 0 {
		return record.Entries, true, nil
	}
	if record.Incrementer == "" {
		return nil, false, nil
	}

	entries := make([]Entry, 0, record.EventCount)
	for i := 1; i <= record.Buckets; i++ {
		raw, ok, err := c.cache.Get(ctx, shardKey(record.Incrementer, i))
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		var slice []Entry
		if err := json.Unmarshal([]byte(raw), &slice); err != nil {
			return nil, false, nil
		}
		entries = append(entries, slice...)
	}

	// Something was evicted underneath the index.
	if len(entries) == 0 || len(entries) != record.EventCount {
		return nil, false, nil
	}
	return entries, true, nil
}

// Store caches entries and returns the number of buckets used. Zero means
// the schedule was too large to cache and the cache was flushed instead.
func (c *ScheduleCache) Store(ctx context.Context, entries []Entry) (int, error) {
	flat, err := json.Marshal(entries)
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode schedule")
	}
	size := len(flat)
	buckets := (size + c.bucketSize - 1) / c.bucketSize

	if buckets <= 1 {
		payload, err := json.Marshal(cacheRecord{Version: inlineVersion, Entries: entries})
		if err != nil {
			return 0, errors.Wrap(err, "failed to encode schedule")
		}
		if err := c.cache.Set(ctx, ScheduleCacheKey, string(payload), c.ttl); err != nil {
			return 0, errors.Wrap(err, "failed to cache schedule")
		}
		return 1, nil
	}

	if buckets > c.maxBuckets {
		c.logger.Warn().
			Int("size", size).
			Int("buckets", buckets).
			Int("events", len(entries)).
			Msg("schedule is too large to cache")
		return 0, c.Flush(ctx)
	}

	sum := md5.Sum(append(flat, strconv.FormatInt(c.timeNow().UnixNano(), 10)...))
	incrementer := hex.EncodeToString(sum[:])
	segment := (len(entries) + buckets - 1) / buckets

	for i := 1; i <= buckets; i++ {
		start := min((i-1)*segment, len(entries))
		end := min(start+segment, len(entries))
		payload, err := json.Marshal(entries[start:end])
		if err != nil {
			return 0, errors.Wrap(err, "failed to encode schedule shard")
		}
		if err := c.cache.Set(ctx, shardKey(incrementer, i), string(payload), c.ttl); err != nil {
			return 0, errors.Wrapf(err, "failed to cache schedule shard %d", i)
		}
	}

	payload, err := json.Marshal(cacheRecord{
		Incrementer: incrementer,
		Buckets:     buckets,
		EventCount:  len(entries),
	})
	if err != nil {
		return 0, errors.Wrap(err, "failed to encode schedule index")
	}
	if err := c.cache.Set(ctx, ScheduleCacheKey, string(payload), c.ttl); err != nil {
		return 0, errors.Wrap(err, "failed to cache schedule index")
	}
	return buckets, nil
}

// Flush drops the index. Shards are left to expire.
func (c *ScheduleCache) Flush(ctx context.Context) error {
	if err := c.cache.Delete(ctx, ScheduleCacheKey); err != nil {
		return errors.Wrap(err, "failed to flush schedule cache")
	}
	return nil
}
