// Package dispatch is the boundary external triggers call: list the due
// batch, then run its entries one at a time.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/RezaEskandarii/cronctl/custom_errors"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// QueueBuilder produces the due batch.
type QueueBuilder interface {
	Build(ctx context.Context) ([]types.QueueEntry, error)
}

// Runner executes one entry.
type Runner interface {
	Run(ctx context.Context, entry types.QueueEntry, force bool) (types.RunResult, error)
}

type Dispatcher struct {
	queue  QueueBuilder
	runner Runner
	logger zerolog.Logger
}

func NewDispatcher(queue QueueBuilder, runner Runner, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:  queue,
		runner: runner,
		logger: logger.With().Str("pkg", "dispatch").Logger(),
	}
}

func (d *Dispatcher) ListDueJobs(ctx context.Context) ([]types.QueueEntry, error) {
	entries, err := d.queue.Build(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to build queue")
		return nil, err
	}
	return entries, nil
}

// RunJob runs one entry. Refusals are *custom_errors.RunError values.
func (d *Dispatcher) RunJob(ctx context.Context, timestamp int64, actionHashed, instance string, force bool) (types.RunResult, error) {
	return d.runner.Run(ctx, types.QueueEntry{
		Timestamp:    timestamp,
		ActionHashed: actionHashed,
		Instance:     instance,
	}, force)
}

// Response is the transport shape of a run: a result on success, the error
// kind with its status hint otherwise.
type Response struct {
	Result *types.RunResult
	Error  *custom_errors.RunError
}

// KindInternal marks a run that failed on storage rather than being refused.
const KindInternal custom_errors.Kind = "internal"

// NewResponse folds a RunJob return into a Response.
func NewResponse(result types.RunResult, err error) Response {
	if err == nil {
		return Response{Result: &result}
	}
	var runErr *custom_errors.RunError
	if errors.As(err, &runErr) {
		return Response{Error: runErr}
	}
	return Response{Error: &custom_errors.RunError{
		Kind:    KindInternal,
		Message: err.Error(),
		Status:  KindInternal.HTTPStatus(),
	}}
}

func (r Response) HTTPStatus() int {
	if r.Error != nil {
		return r.Error.Status
	}
	return http.StatusOK
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(r.Error)
	}
	return json.Marshal(r.Result)
}
