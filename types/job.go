package types

import (
	"fmt"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/state"
)

// Job is one persisted firing of an action.
type Job struct {
	ID           int64           `json:"id"`
	Timestamp    int64           `json:"timestamp"`
	Action       string          `json:"action"`
	ActionHashed string          `json:"action_hashed"`
	Instance     string          `json:"instance"`
	Args         []any           `json:"args"`
	Schedule     string          `json:"schedule,omitempty"` // empty for one-shot jobs
	Interval     int64           `json:"interval"`
	Status       state.JobStatus `json:"status"`
	Created      time.Time       `json:"created"`
	LastModified time.Time       `json:"last_modified"`
}

func (j Job) IsRecurring() bool {
	return j.Schedule != ""
}

// Identifier renders the public identity triple used in messages.
func (j Job) Identifier() string {
	return fmt.Sprintf("%d-%s-%s", j.Timestamp, j.ActionHashed, j.Instance)
}

// JobParams is the input of a create-or-update write. A positive ExistingID
// updates that row in place while it is pending; a positive
// ExpectedTimestamp further requires the row to still be due then.
type JobParams struct {
	Timestamp         int64
	Action            string
	Args              []any
	Schedule          string
	Interval          int64
	ExistingID        int64
	ExpectedTimestamp int64
}
