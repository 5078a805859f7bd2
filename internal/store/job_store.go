package store

import (
	"context"

	"github.com/RezaEskandarii/cronctl/internal/state"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/cockroachdb/errors"
)

var (
	ErrJobNotFound = errors.New("store: job not found")
	// ErrJobExists reports a write that would duplicate a firing identity.
	ErrJobExists = errors.New("store: job already exists")
)

// JobAttributes identifies a firing by its natural key. Either Action or
// ActionHashed must be set; Status defaults to pending.
type JobAttributes struct {
	Timestamp    int64
	Action       string
	ActionHashed string
	Instance     string
	Status       state.StatusFilter
}

// JobStore defines the durable job table. Every method is a single statement
// or a read; none needs a transaction.
type JobStore interface {
	// CreateOrUpdate inserts a pending job, or updates the pending row named
	// by ExistingID in place leaving its status and created time untouched.
	// An update that matches no row returns ErrJobNotFound. Returns the
	// job's ID.
	CreateOrUpdate(ctx context.Context, params types.JobParams) (int64, error)

	// GetJobs pages through jobs. Ordering by timestamp is applied only when
	// forceSort is set.
	GetJobs(ctx context.Context, filter state.StatusFilter, quantity, page int, forceSort bool) ([]types.Job, error)

	// GetJobByID only finds pending jobs.
	GetJobByID(ctx context.Context, id int64) (*types.Job, error)

	GetJobByAttributes(ctx context.Context, attrs JobAttributes) (*types.Job, error)

	// GetJobsByAction lists pending jobs of an action in timestamp order,
	// restricted to one instance when instance is not empty.
	GetJobsByAction(ctx context.Context, action, instance string, limit int) ([]types.Job, error)

	// MarkCompletedByID completes a job and scrambles its instance so the
	// firing identity can be scheduled again before the row is purged. It
	// reports false when the job is missing or already completed.
	MarkCompletedByID(ctx context.Context, id int64) (bool, error)

	// PurgeCompleted deletes completed rows and returns how many went.
	PurgeCompleted(ctx context.Context, countFirst bool) (int64, error)

	CountByStatus(ctx context.Context, filter state.StatusFilter) (int, error)

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	Paginate(ctx context.Context, filter state.StatusFilter, page, pageSize int) (*types.PaginationResult[types.Job], error)

	// Close closes the database
	Close() error
}
