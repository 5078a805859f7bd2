package state

import "github.com/cockroachdb/errors"

// StatusFilter selects rows by status. The zero value matches pending rows.
type StatusFilter struct {
	status JobStatus
	any    bool
}

var (
	FilterPending   = StatusFilter{status: StatusPending}
	FilterRunning   = StatusFilter{status: StatusRunning}
	FilterCompleted = StatusFilter{status: StatusCompleted}
	FilterAny       = StatusFilter{any: true}
)

// Only returns a filter matching exactly one status.
func Only(status JobStatus) StatusFilter {
	return StatusFilter{status: status}
}

// ParseStatusFilter accepts a status name or "any".
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch s {
	case "", StatusPending.String():
		return FilterPending, nil
	case "any", "all":
		return FilterAny, nil
	}
	status := JobStatus(s)
	if !status.Valid() {
		return StatusFilter{}, errors.Newf("unknown status %q", s)
	}
	return Only(status), nil
}

func (f StatusFilter) IsAny() bool {
	return f.any
}

// Status returns the matched status; it is meaningless when IsAny is true.
func (f StatusFilter) Status() JobStatus {
	if f.status == "" {
		return StatusPending
	}
	return f.status
}

func (f StatusFilter) Matches(s JobStatus) bool {
	return f.any || f.Status() == s
}

func (f StatusFilter) String() string {
	if f.any {
		return "any"
	}
	return f.Status().String()
}
