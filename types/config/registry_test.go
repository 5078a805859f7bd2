package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRegistry(t *testing.T) {
	hr := NewHandlerRegistry()
	assert.False(t, hr.Has("send_digest"))

	calls := 0
	fn := func(ctx context.Context, args ...any) error {
		calls++
		return nil
	}
	require.NoError(t, hr.Register("send_digest", fn))
	require.NoError(t, hr.Register("send_digest", func(ctx context.Context, args ...any) error {
		return errors.New("second")
	}))

	assert.True(t, hr.Has("send_digest"))
	handlers := hr.Handlers("send_digest")
	require.Len(t, handlers, 2)
	assert.NoError(t, handlers[0](context.Background()))
	assert.Error(t, handlers[1](context.Background()))
	assert.Equal(t, 1, calls)

	assert.Error(t, hr.Register("", fn))
	assert.Error(t, hr.Register("x", nil))

	require.NoError(t, hr.Register("another", fn))
	assert.Equal(t, []string{"another", "send_digest"}, hr.List())

	hr.Remove("another")
	assert.False(t, hr.Has("another"))
}

func TestScheduleRegistry_Builtins(t *testing.T) {
	sr := NewScheduleRegistry()

	interval, ok := sr.Interval("hourly")
	require.True(t, ok)
	assert.Equal(t, int64(3600), interval)

	interval, ok = sr.Interval("daily")
	require.True(t, ok)
	assert.Equal(t, int64(86400), interval)

	_, ok = sr.Interval("fortnightly")
	assert.False(t, ok)
}

func TestScheduleRegistry_Specs(t *testing.T) {
	sr := NewScheduleRegistry()

	require.NoError(t, sr.Register(ScheduleSpec{Name: "ten_minutes", Spec: "@every 10m"}))
	interval, ok := sr.Interval("ten_minutes")
	require.True(t, ok)
	assert.Equal(t, int64(600), interval)

	require.NoError(t, sr.Register(ScheduleSpec{Name: "quarter_hour", Spec: "*/15 * * * *"}))
	interval, ok = sr.Interval("quarter_hour")
	require.True(t, ok)
	assert.Equal(t, int64(900), interval)

	require.NoError(t, sr.Register(ScheduleSpec{Name: "minute", Interval: time.Minute}))
	s, ok := sr.Get("minute")
	require.True(t, ok)
	assert.Equal(t, time.Minute, s.Interval)
	assert.Equal(t, "minute", sr.List()[0].Name)

	assert.Error(t, sr.Register(ScheduleSpec{Name: "bad", Spec: "not a cron"}))
	assert.Error(t, sr.Register(ScheduleSpec{Name: "tiny", Interval: time.Millisecond}))
	assert.Error(t, sr.Register(ScheduleSpec{Spec: "@hourly"}))
}
