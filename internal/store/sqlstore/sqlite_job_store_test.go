package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *JobStore {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	statements, err := SQLite.Schema()
	require.NoError(t, err)
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return NewSQLiteJobStore(db)
}

func TestSQLiteJobStore_UniquePendingFiring(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	params := types.JobParams{Timestamp: 1000, Action: "send_digest", Args: []any{map[string]any{"user": 7}}}
	id, err := s.CreateOrUpdate(ctx, params)
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = s.CreateOrUpdate(ctx, params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrJobExists))

	count, err := s.CountByStatus(ctx, state.FilterPending)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteJobStore_CompletionFreesFiringIdentity(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	params := types.JobParams{Timestamp: 1000, Action: "one_shot", Args: []any{"x"}}

	for round := 0; round < 3; round++ {
		id, err := s.CreateOrUpdate(ctx, params)
		require.NoError(t, err)

		ok, err := s.MarkCompletedByID(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
	}

	completed, err := s.GetJobs(ctx, state.FilterCompleted, 10, 1, true)
	require.NoError(t, err)
	require.Len(t, completed, 3)

	instance, _ := types.HashArgs(params.Args)
	for _, job := range completed {
		assert.Equal(t, state.StatusCompleted, job.Status)
		assert.NotEqual(t, instance, job.Instance)
		assert.Len(t, job.Instance, 32)
	}

	_, err = s.GetJobByAttributes(ctx, store.JobAttributes{Timestamp: 1000, Action: "one_shot", Instance: instance})
	assert.True(t, errors.Is(err, store.ErrJobNotFound))
}

func TestSQLiteJobStore_UpdateInPlaceKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	id, err := s.CreateOrUpdate(ctx, types.JobParams{Timestamp: 1000, Action: "hourly_job", Schedule: "hourly", Interval: 3600})
	require.NoError(t, err)

	updated, err := s.CreateOrUpdate(ctx, types.JobParams{Timestamp: 4600, Action: "hourly_job", Schedule: "hourly", Interval: 3600, ExistingID: id})
	require.NoError(t, err)
	assert.Equal(t, id, updated)

	job, err := s.GetJobByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4600), job.Timestamp)
	assert.Equal(t, state.StatusPending, job.Status)
	assert.Equal(t, "hourly", job.Schedule)
	assert.Equal(t, int64(3600), job.Interval)

	total, err := s.CountByStatus(ctx, state.FilterAny)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestSQLiteJobStore_WritesOnlyApplyToPendingRows(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	params := types.JobParams{Timestamp: 1000, Action: "hourly_job", Schedule: "hourly", Interval: 3600}

	id, err := s.CreateOrUpdate(ctx, params)
	require.NoError(t, err)

	moved := params
	moved.Timestamp, moved.ExistingID, moved.ExpectedTimestamp = 4600, id, 1000
	_, err = s.CreateOrUpdate(ctx, moved)
	require.NoError(t, err)

	// A second writer that read the row at 1000 no longer matches it.
	stale := moved
	stale.Timestamp = 8200
	_, err = s.CreateOrUpdate(ctx, stale)
	assert.True(t, errors.Is(err, store.ErrJobNotFound))

	ok, err := s.MarkCompletedByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.MarkCompletedByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	moved.ExpectedTimestamp = 0
	_, err = s.CreateOrUpdate(ctx, moved)
	assert.True(t, errors.Is(err, store.ErrJobNotFound))

	counts, err := s.CountAllJobsGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[state.StatusPending])
	assert.Equal(t, 1, counts[state.StatusCompleted])
}

func TestSQLiteJobStore_LookupsAndPurge(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	for i, ts := range []int64{300, 100, 200} {
		_, err := s.CreateOrUpdate(ctx, types.JobParams{Timestamp: ts, Action: "report", Args: []any{i}})
		require.NoError(t, err)
	}
	_, err := s.CreateOrUpdate(ctx, types.JobParams{Timestamp: 50, Action: "other"})
	require.NoError(t, err)

	jobs, err := s.GetJobsByAction(ctx, "report", "", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, int64(100), jobs[0].Timestamp)

	instance, _ := types.HashArgs([]any{2})
	jobs, err = s.GetJobsByAction(ctx, "report", instance, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(200), jobs[0].Timestamp)

	byHash, err := s.GetJobByAttributes(ctx, store.JobAttributes{Timestamp: 200, ActionHashed: types.HashAction("report"), Instance: instance})
	require.NoError(t, err)
	assert.Equal(t, "report", byHash.Action)

	ok, err := s.MarkCompletedByID(ctx, byHash.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.GetJobByID(ctx, byHash.ID)
	assert.True(t, errors.Is(err, store.ErrJobNotFound))

	counts, err := s.CountAllJobsGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[state.StatusPending])
	assert.Equal(t, 1, counts[state.StatusCompleted])

	purged, err := s.PurgeCompleted(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	purged, err = s.PurgeCompleted(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)
}
