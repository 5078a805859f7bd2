package types

// QueueEntry is the stripped identity of a runnable job handed across the
// dispatch boundary. The action name never leaves the process; only its hash.
type QueueEntry struct {
	Timestamp    int64  `json:"timestamp"`
	ActionHashed string `json:"action_hashed"`
	Instance     string `json:"instance"`
}

// RunResult is what a dispatched run reports back to its caller.
type RunResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
