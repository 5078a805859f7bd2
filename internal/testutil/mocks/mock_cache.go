package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/cronctl/internal/cache"
)

// MockCache delegates to Base unless the matching function field is set.
type MockCache struct {
	Base cache.Cache

	GetFunc    func(ctx context.Context, key string) (string, bool, error)
	SetFunc    func(ctx context.Context, key, value string, ttl time.Duration) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	DeleteFunc func(ctx context.Context, keys ...string) error
}

func (m *MockCache) Get(ctx context.Context, key string) (string, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return m.Base.Get(ctx, key)
}

func (m *MockCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, ttl)
	}
	return m.Base.Set(ctx, key, value, ttl)
}

func (m *MockCache) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return m.Base.Add(ctx, key, value, ttl)
}

func (m *MockCache) Incr(ctx context.Context, key string) (int64, error) {
	if m.IncrFunc != nil {
		return m.IncrFunc(ctx, key)
	}
	return m.Base.Incr(ctx, key)
}

func (m *MockCache) Decr(ctx context.Context, key string) (int64, error) {
	return m.Base.Decr(ctx, key)
}

func (m *MockCache) Delete(ctx context.Context, keys ...string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, keys...)
	}
	return m.Base.Delete(ctx, keys...)
}
