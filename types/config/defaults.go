package config

import "time"

const (
	DefaultStorageDriver = Postgres
	DefaultCacheDriver   = Redis

	DefaultQueueWindow    = 60 * time.Second
	DefaultBatchSize      = 10
	DefaultFairnessSweeps = 15

	DefaultGlobalConcurrency = 10
	DefaultActionConcurrency = 1
	DefaultMaxConcurrency    = 250
	DefaultLockStaleness     = 10 * time.Minute

	DefaultScheduleCacheTTL = time.Hour
	DefaultCacheBucketSize  = 900 * 1024
	DefaultMaxCacheBuckets  = 5
	DefaultRebuildPageSize  = 100
	DefaultRebuildMaxPages  = 15

	DefaultWorkerCount   = 5
	DefaultFetchInterval = 60 * time.Second
	DefaultRunPause      = 10 * time.Second
)
