package state

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
)

func (s JobStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the persisted statuses.
func (s JobStatus) Valid() bool {
	for _, status := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

var AllStatuses = []JobStatus{
	StatusPending,
	StatusRunning,
	StatusCompleted,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

// Running is mostly held in locks rather than persisted, so pending may
// complete directly.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusRunning},
	{From: StatusPending, To: StatusCompleted},
	{From: StatusRunning, To: StatusCompleted},
	{From: StatusRunning, To: StatusPending},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Sources lists the statuses a job may move to to from, in AllStatuses order.
func Sources(to JobStatus) []JobStatus {
	var from []JobStatus
	for _, status := range AllStatuses {
		if IsValidTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}
