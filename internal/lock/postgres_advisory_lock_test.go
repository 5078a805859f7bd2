package lock

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresAdvisoryLock_AcquireRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewPostgresAdvisoryLock(db)

	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))

	conn, err := mgr.Acquire(context.Background(), MigrationLock)
	require.NoError(t, err)
	require.NoError(t, mgr.Release(context.Background(), conn, MigrationLock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdvisoryLock_Acquire_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewPostgresAdvisoryLock(db)

	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrConnDone)

	conn, err := mgr.Acquire(context.Background(), 42)
	assert.Nil(t, conn)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAdvisoryLock_Release_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mgr := NewPostgresAdvisoryLock(db)

	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(MigrationLock).
		WillReturnError(sql.ErrConnDone)

	conn, err := mgr.Acquire(context.Background(), MigrationLock)
	require.NoError(t, err)

	err = mgr.Release(context.Background(), conn, MigrationLock)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to release lock")
}
