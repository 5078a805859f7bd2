package app

import (
	"database/sql"

	"github.com/RezaEskandarii/cronctl/internal/message_broaker"
	"github.com/RezaEskandarii/cronctl/internal/store/sqlstore"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject connections instead of creating them from config
	db      *sql.DB
	dialect sqlstore.Dialect
	redis   *redis.Client
	broker  message_broaker.MessageBroker
}

// WithDB injects a database connection and its dialect. The container
// still applies the schema but does not close the connection.
func WithDB(db *sql.DB, dialect sqlstore.Dialect) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
		c.dialect = dialect
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithBroker injects the fan-out broker used when queue fan-out is enabled.
func WithBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}
