package config

import "strings"

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	SQLite
)

type CacheDriver int

const (
	Redis CacheDriver = iota + 1
	Memory
)

type MessageQueueDriver int

const (
	RabbitMQ MessageQueueDriver = iota + 1
)

func (d MessageQueueDriver) String() string {
	switch d {
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	}
	return "unknown"
}

func (d CacheDriver) String() string {
	switch d {
	case Redis:
		return "redis"
	case Memory:
		return "memory"
	}
	return "unknown"
}

// ParseStorageDriver is the inverse of StorageDriver.String.
func ParseStorageDriver(s string) (StorageDriver, bool) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql":
		return Postgres, true
	case "sqlite", "sqlite3":
		return SQLite, true
	}
	return 0, false
}

func ParseCacheDriver(s string) (CacheDriver, bool) {
	switch strings.ToLower(s) {
	case "redis":
		return Redis, true
	case "memory":
		return Memory, true
	}
	return 0, false
}
