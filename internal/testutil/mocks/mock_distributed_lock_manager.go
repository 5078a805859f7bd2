package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDistributedLockManager answers with its function fields and records
// every call. Nil fields succeed.
type MockDistributedLockManager struct {
	PrimeFunc           func(ctx context.Context, key string, expiry time.Duration) error
	CheckAndAcquireFunc func(ctx context.Context, key string, limit int, staleness time.Duration) (bool, error)
	ReleaseFunc         func(ctx context.Context, key string, expiry time.Duration) error
	ResetFunc           func(ctx context.Context, key string, expiry time.Duration) error

	mu    sync.Mutex
	calls []string
}

func (m *MockDistributedLockManager) record(op, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op+" "+key)
}

// Recorded returns the calls made so far, formatted as "op key".
func (m *MockDistributedLockManager) Recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockDistributedLockManager) Prime(ctx context.Context, key string, expiry time.Duration) error {
	m.record("prime", key)
	if m.PrimeFunc == nil {
		return nil
	}
	return m.PrimeFunc(ctx, key, expiry)
}

func (m *MockDistributedLockManager) CheckAndAcquire(ctx context.Context, key string, limit int, staleness time.Duration) (bool, error) {
	m.record("acquire", key)
	if m.CheckAndAcquireFunc == nil {
		return true, nil
	}
	return m.CheckAndAcquireFunc(ctx, key, limit, staleness)
}

func (m *MockDistributedLockManager) Release(ctx context.Context, key string, expiry time.Duration) error {
	m.record("release", key)
	if m.ReleaseFunc == nil {
		return nil
	}
	return m.ReleaseFunc(ctx, key, expiry)
}

func (m *MockDistributedLockManager) Reset(ctx context.Context, key string, expiry time.Duration) error {
	m.record("reset", key)
	if m.ResetFunc == nil {
		return nil
	}
	return m.ResetFunc(ctx, key, expiry)
}

func (m *MockDistributedLockManager) Inspect(_ context.Context, key string) (int64, time.Time, error) {
	m.record("inspect", key)
	return 0, time.Time{}, nil
}
