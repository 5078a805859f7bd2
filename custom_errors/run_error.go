package custom_errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Kind classifies why a job run was refused.
type Kind string

const (
	KindInvalidInput  Kind = "invalid-input"
	KindPremature     Kind = "premature"
	KindNoEvent       Kind = "no-event"
	KindNoFreeThreads Kind = "no-free-threads"
)

// HTTPStatus is the status a transport should answer with for this kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPremature:
		return http.StatusForbidden
	case KindNoEvent:
		return http.StatusNotFound
	case KindNoFreeThreads:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the same request may succeed later.
func (k Kind) Retryable() bool {
	return k == KindPremature || k == KindNoFreeThreads
}

// RunError is the structured refusal returned by a job run.
type RunError struct {
	Kind    Kind   `json:"error_kind"`
	Message string `json:"error_message"`
	Status  int    `json:"http_status_hint"`
}

func NewRunError(kind Kind, format string, args ...any) *RunError {
	return &RunError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Status:  kind.HTTPStatus(),
	}
}

func (e *RunError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

func (e *RunError) HTTPStatus() int {
	return e.Status
}

// KindOf extracts the kind of a RunError anywhere in err's chain.
func KindOf(err error) (Kind, bool) {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a RunError of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
