package db

import (
	"context"
	"database/sql"

	"github.com/RezaEskandarii/cronctl/internal/lock"
	"github.com/RezaEskandarii/cronctl/internal/store/sqlstore"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// execer is satisfied by both *sql.DB and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open connects to the configured storage driver and returns the matching dialect.
func Open(cfg *config.CronControlConfig) (*sql.DB, sqlstore.Dialect, error) {
	switch cfg.StorageDriver {
	case config.Postgres:
		db, err := sql.Open("postgres", cfg.PostgresConfig.ConnectionUrl)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open postgres")
		}
		return db, sqlstore.Postgres, nil
	case config.SQLite:
		db, err := sql.Open("sqlite3", cfg.SQLiteConfig.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open sqlite")
		}
		// SQLite serializes writers; one connection avoids SQLITE_BUSY and
		// keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
		return db, sqlstore.SQLite, nil
	default:
		return nil, nil, errors.Newf("unsupported storage driver: %v", cfg.StorageDriver)
	}
}

// Init verifies the connection and creates the jobs table if needed.
//
// On Postgres the statements run while holding an advisory lock so that
// runners starting together do not race on DDL. The lock is released and the
// dedicated connection returned to the pool when Init returns.
func Init(ctx context.Context, db *sql.DB, dialect sqlstore.Dialect, logger zerolog.Logger) error {
	if err := db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "ping database")
	}

	statements, err := dialect.Schema()
	if err != nil {
		return err
	}

	var target execer = db
	if dialect.Name() == sqlstore.Postgres.Name() {
		advisory := lock.NewPostgresAdvisoryLock(db)
		conn, err := advisory.Acquire(ctx, lock.MigrationLock)
		if err != nil {
			return err
		}
		defer func() {
			if err := advisory.Release(context.Background(), conn, lock.MigrationLock); err != nil {
				logger.Error().Err(err).Msg("failed to release migration lock")
			}
		}()
		target = conn
	}

	for _, stmt := range statements {
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply schema (%s)", dialect.Name())
		}
	}
	logger.Debug().Str("dialect", dialect.Name()).Int("statements", len(statements)).Msg("schema ready")

	return nil
}
