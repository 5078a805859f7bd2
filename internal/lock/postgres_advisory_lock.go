package lock

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// MigrationLock guards schema creation across runners starting together.
	MigrationLock int64 = 0x63726f6e
)

// PostgresAdvisoryLock serializes one-off work such as migrations through
// session-level advisory locks.
type PostgresAdvisoryLock struct {
	db *sql.DB
}

func NewPostgresAdvisoryLock(db *sql.DB) *PostgresAdvisoryLock {
	return &PostgresAdvisoryLock{
		db: db,
	}
}

// Acquire blocks on the lock and returns the connection holding it, which
// Release must be given back. Advisory locks belong to a session, so the
// same connection has to unlock.
func (l *PostgresAdvisoryLock) Acquire(ctx context.Context, lockID int64) (*sql.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire lock")
	}
	if _, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to acquire lock")
	}

	return conn, nil
}

func (l *PostgresAdvisoryLock) Release(ctx context.Context, conn *sql.Conn, lockID int64) error {
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return errors.Wrap(err, "failed to release lock")
	}

	return nil
}
