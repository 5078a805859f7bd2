package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/internal/store"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const jobColumns = `id, "timestamp", action, action_hashed, instance, args, schedule, "interval", status, created, last_modified`

var _ store.JobStore = (*JobStore)(nil)

type JobStore struct {
	db       *sql.DB
	dialect  Dialect
	timeNow  func() time.Time
	scramble func() string
}

type Option func(*JobStore)

func WithClock(timeNow func() time.Time) Option {
	return func(s *JobStore) { s.timeNow = timeNow }
}

// WithScrambler replaces the random instance written on completion.
func WithScrambler(scramble func() string) Option {
	return func(s *JobStore) { s.scramble = scramble }
}

func NewJobStore(db *sql.DB, dialect Dialect, opts ...Option) *JobStore {
	s := &JobStore{
		db:       db,
		dialect:  dialect,
		timeNow:  time.Now,
		scramble: randomInstance,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func NewPostgresJobStore(db *sql.DB, opts ...Option) *JobStore {
	return NewJobStore(db, Postgres, opts...)
}

func NewSQLiteJobStore(db *sql.DB, opts ...Option) *JobStore {
	return NewJobStore(db, SQLite, opts...)
}

// randomInstance has the width of an md5 hex digest so it fits the column.
func randomInstance() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// q substitutes the table name and rebinds placeholders.
func (s *JobStore) q(query string) string {
	return s.dialect.Rebind(strings.ReplaceAll(query, "{table}", s.dialect.Table()))
}

func (s *JobStore) CreateOrUpdate(ctx context.Context, params types.JobParams) (int64, error) {
	payload, err := types.EncodeArgs(params.Args)
	if err != nil {
		return 0, err
	}
	instance, err := types.HashArgs(params.Args)
	if err != nil {
		return 0, err
	}
	schedule := sql.NullString{String: params.Schedule, Valid: params.Schedule != ""}
	now := s.timeNow().UTC()

	if params.ExistingID > 0 {
		query := `
			UPDATE {table}
			SET "timestamp" = $1, action = $2, action_hashed = $3, instance = $4,
			    args = $5, schedule = $6, "interval" = $7, last_modified = $8
			WHERE id = $9 AND status = $10`
		args := []any{
			params.Timestamp, params.Action, types.HashAction(params.Action), instance,
			string(payload), schedule, params.Interval, now, params.ExistingID, state.StatusPending,
		}
		if params.ExpectedTimestamp > 0 {
			query += ` AND "timestamp" = $11`
			args = append(args, params.ExpectedTimestamp)
		}
		res, err := s.db.ExecContext(ctx, s.q(query), args...)
		if err != nil {
			if s.dialect.IsUniqueViolation(err) {
				return 0, errors.Mark(errors.Wrapf(err, "failed to update job %d", params.ExistingID), store.ErrJobExists)
			}
			return 0, errors.Wrapf(err, "failed to update job %d", params.ExistingID)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return 0, errors.Wrapf(store.ErrJobNotFound, "job %d", params.ExistingID)
		}
		return params.ExistingID, nil
	}

	query := s.q(`
		INSERT INTO {table} ("timestamp", action, action_hashed, instance, args, schedule, "interval", status, created, last_modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`)
	var jobID int64
	err = s.db.QueryRowContext(ctx, query,
		params.Timestamp, params.Action, types.HashAction(params.Action), instance,
		string(payload), schedule, params.Interval, state.StatusPending, now).Scan(&jobID)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return 0, errors.Mark(errors.Wrap(err, "failed to insert job"), store.ErrJobExists)
		}
		return 0, errors.Wrap(err, "failed to insert job")
	}

	return jobID, nil
}

func (s *JobStore) GetJobs(ctx context.Context, filter state.StatusFilter, quantity, page int, forceSort bool) ([]types.Job, error) {
	if quantity < 1 {
		quantity = 100
	}
	if page < 1 {
		page = 1
	}

	where, args := statusClause(filter, 1)
	query := `SELECT ` + jobColumns + ` FROM {table}` + where
	if forceSort {
		query += ` ORDER BY "timestamp" ASC`
	}
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, quantity, (page-1)*quantity)

	return s.queryJobs(ctx, s.q(query), args...)
}

func (s *JobStore) GetJobByID(ctx context.Context, id int64) (*types.Job, error) {
	query := s.q(`SELECT ` + jobColumns + ` FROM {table} WHERE id = $1 AND status = $2`)
	return s.queryJob(ctx, query, id, state.StatusPending)
}

func (s *JobStore) GetJobByAttributes(ctx context.Context, attrs store.JobAttributes) (*types.Job, error) {
	if attrs.Action == "" && attrs.ActionHashed == "" {
		return nil, errors.New("job lookup needs an action or its hash")
	}

	where := ` WHERE "timestamp" = $1 AND instance = $2`
	args := []any{attrs.Timestamp, attrs.Instance}
	if attrs.Action != "" {
		where += ` AND action = $3`
		args = append(args, attrs.Action)
	} else {
		where += ` AND action_hashed = $3`
		args = append(args, attrs.ActionHashed)
	}
	if !attrs.Status.IsAny() {
		where += ` AND status = $4`
		args = append(args, attrs.Status.Status())
	}

	query := s.q(`SELECT ` + jobColumns + ` FROM {table}` + where + ` LIMIT 1`)
	return s.queryJob(ctx, query, args...)
}

func (s *JobStore) GetJobsByAction(ctx context.Context, action, instance string, limit int) ([]types.Job, error) {
	if limit < 1 {
		limit = 100
	}
	where := ` WHERE action = $1 AND status = $2`
	args := []any{action, state.StatusPending}
	if instance != "" {
		where += ` AND instance = $3`
		args = append(args, instance)
	}
	query := s.q(`SELECT ` + jobColumns + ` FROM {table}` + where +
		fmt.Sprintf(` ORDER BY "timestamp" ASC LIMIT $%d`, len(args)+1))
	args = append(args, limit)

	return s.queryJobs(ctx, query, args...)
}

func (s *JobStore) MarkCompletedByID(ctx context.Context, id int64) (bool, error) {
	from := state.Sources(state.StatusCompleted)
	placeholders := make([]string, len(from))
	args := []any{state.StatusCompleted, s.scramble(), s.timeNow().UTC(), id}
	for i, status := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, status)
	}
	query := s.q(`
		UPDATE {table}
		SET status = $1, instance = $2, last_modified = $3
		WHERE id = $4 AND status IN (` + strings.Join(placeholders, ", ") + `)`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to complete job %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "failed to complete job %d", id)
	}
	return n > 0, nil
}

func (s *JobStore) PurgeCompleted(ctx context.Context, countFirst bool) (int64, error) {
	if countFirst {
		count, err := s.CountByStatus(ctx, state.FilterCompleted)
		if err != nil {
			return 0, err
		}
		if count == 0 {
			return 0, nil
		}
	}

	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM {table} WHERE status = $1`), state.StatusCompleted)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge completed jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge completed jobs")
	}
	return n, nil
}

func (s *JobStore) CountByStatus(ctx context.Context, filter state.StatusFilter) (int, error) {
	where, args := statusClause(filter, 1)
	var count int
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM {table}`+where), args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count jobs")
	}
	return count, nil
}

func (s *JobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT status, COUNT(*) AS count
		FROM {table}
		GROUP BY status
	`))
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		result[status] = count
	}
	return result, rows.Err()
}

func (s *JobStore) Paginate(ctx context.Context, filter state.StatusFilter, page, pageSize int) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 100
	}

	totalItems, err := s.CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}
	jobs, err := s.GetJobs(ctx, filter, pageSize, page, true)
	if err != nil {
		return nil, err
	}

	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (s *JobStore) Close() error {
	return s.db.Close()
}

func statusClause(filter state.StatusFilter, argIndex int) (string, []any) {
	if filter.IsAny() {
		return "", nil
	}
	return fmt.Sprintf(` WHERE status = $%d`, argIndex), []any{filter.Status()}
}

func (s *JobStore) queryJob(ctx context.Context, query string, args ...any) (*types.Job, error) {
	jobs, err := s.queryJobs(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, store.ErrJobNotFound
	}
	return &jobs[0], nil
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query jobs")
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read jobs")
	}
	return jobs, nil
}

func scanJob(rows *sql.Rows) (types.Job, error) {
	var (
		job      types.Job
		args     []byte
		schedule sql.NullString
	)
	err := rows.Scan(
		&job.ID, &job.Timestamp, &job.Action, &job.ActionHashed, &job.Instance,
		&args, &schedule, &job.Interval, &job.Status, &job.Created, &job.LastModified,
	)
	if err != nil {
		return job, errors.Wrap(err, "failed to scan job")
	}
	job.Schedule = schedule.String
	if job.Args, err = types.DecodeArgs(args); err != nil {
		return job, errors.Wrapf(err, "job %d", job.ID)
	}
	return job, nil
}
