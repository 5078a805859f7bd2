package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/cronctl/types"
)

// MockDispatcher is a mock implementation of client.Dispatcher for testing.
// It records every entry passed to RunJob.
type MockDispatcher struct {
	ListDueJobsFunc func(ctx context.Context) ([]types.QueueEntry, error)
	RunJobFunc      func(ctx context.Context, entry types.QueueEntry, force bool) (types.RunResult, error)

	mu   sync.Mutex
	runs []types.QueueEntry
}

func (m *MockDispatcher) ListDueJobs(ctx context.Context) ([]types.QueueEntry, error) {
	if m.ListDueJobsFunc != nil {
		return m.ListDueJobsFunc(ctx)
	}
	return nil, nil
}

func (m *MockDispatcher) RunJob(ctx context.Context, timestamp int64, actionHashed, instance string, force bool) (types.RunResult, error) {
	entry := types.QueueEntry{Timestamp: timestamp, ActionHashed: actionHashed, Instance: instance}
	m.mu.Lock()
	m.runs = append(m.runs, entry)
	m.mu.Unlock()

	if m.RunJobFunc != nil {
		return m.RunJobFunc(ctx, entry, force)
	}
	return types.RunResult{Success: true}, nil
}

func (m *MockDispatcher) Runs() []types.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.QueueEntry(nil), m.runs...)
}
