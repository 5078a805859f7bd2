// Package testutil builds the real storage stack on in-memory backends for
// package tests.
package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/RezaEskandarii/cronctl/internal/lock"
	"github.com/RezaEskandarii/cronctl/internal/store/sqlstore"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Clock is a settable time source shared by every component under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// NewSQLiteDB opens a private in-memory database with the job schema.
func NewSQLiteDB(t testing.TB) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	statements, err := sqlstore.SQLite.Schema()
	require.NoError(t, err)
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

// Stack is a job table, cache and lock manager sharing one clock.
type Stack struct {
	Clock *Clock
	Jobs  *sqlstore.JobStore
	Cache *cache.MemoryCache
	Locks *lock.CacheLockManager
}

func NewStack(t testing.TB, now time.Time) *Stack {
	t.Helper()
	clock := NewClock(now)
	c := cache.NewMemoryCacheWithClock(clock.Now)
	return &Stack{
		Clock: clock,
		Jobs:  sqlstore.NewSQLiteJobStore(NewSQLiteDB(t), sqlstore.WithClock(clock.Now)),
		Cache: c,
		Locks: lock.NewCacheLockManager(c, lock.WithClock(clock.Now)),
	}
}

// Logger discards output unless the test runs verbose.
func Logger(t testing.TB) zerolog.Logger {
	if testing.Verbose() {
		return zerolog.New(zerolog.ConsoleWriter{Out: testWriter{t}, NoColor: true})
	}
	return zerolog.Nop()
}

type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
