package test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RezaEskandarii/cronctl/client"
	"github.com/RezaEskandarii/cronctl/client/test/mocks"
	"github.com/RezaEskandarii/cronctl/custom_errors"
	"github.com/RezaEskandarii/cronctl/internal/cache"
	"github.com/RezaEskandarii/cronctl/internal/testutil"
	"github.com/RezaEskandarii/cronctl/types"
	"github.com/RezaEskandarii/cronctl/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func newConfig(t *testing.T, opts ...config.Option) *config.CronControlConfig {
	t.Helper()
	opts = append([]config.Option{config.WithMemoryCache(), config.WithWorkerCount(2), config.WithRunPause(0)}, opts...)
	cfg, err := config.NewCronControlConfig("runner-test", opts...)
	require.NoError(t, err)
	return cfg
}

func entriesAt(ts int64, actions ...string) []types.QueueEntry {
	entries := make([]types.QueueEntry, 0, len(actions))
	for _, action := range actions {
		entries = append(entries, types.QueueEntry{
			Timestamp:    ts,
			ActionHashed: types.HashAction(action),
			Instance:     "d751713988987e9331980363e24189ce",
		})
	}
	return entries
}

func TestRunner_RunOnceRunsDueEntries(t *testing.T) {
	due := entriesAt(now.Unix()-5, "a", "b", "c")
	dispatcher := &mocks.MockDispatcher{
		ListDueJobsFunc: func(context.Context) ([]types.QueueEntry, error) { return due, nil },
	}
	r := client.NewRunner(dispatcher, newConfig(t), testutil.Logger(t), client.WithClock(testutil.NewClock(now).Now))

	r.RunOnce(context.Background())

	assert.ElementsMatch(t, due, dispatcher.Runs())
	assert.Equal(t, client.Stats{Succeeded: 3}, r.Stats())
}

func TestRunner_SkipsPrematureEntries(t *testing.T) {
	due := append(entriesAt(now.Unix(), "a"), entriesAt(now.Unix()+30, "b")...)
	dispatcher := &mocks.MockDispatcher{
		ListDueJobsFunc: func(context.Context) ([]types.QueueEntry, error) { return due, nil },
	}
	r := client.NewRunner(dispatcher, newConfig(t), testutil.Logger(t), client.WithClock(testutil.NewClock(now).Now))

	r.RunOnce(context.Background())

	assert.Equal(t, due[:1], dispatcher.Runs())
}

func TestRunner_CountsOutcomes(t *testing.T) {
	outcomes := map[string]func() (types.RunResult, error){
		types.HashAction("gone"): func() (types.RunResult, error) {
			return types.RunResult{}, custom_errors.NewRunError(custom_errors.KindNoEvent, "gone")
		},
		types.HashAction("busy"): func() (types.RunResult, error) {
			return types.RunResult{}, custom_errors.NewRunError(custom_errors.KindNoFreeThreads, "busy")
		},
		types.HashAction("broken"): func() (types.RunResult, error) {
			return types.RunResult{Success: false, Message: "failed"}, nil
		},
		types.HashAction("storage"): func() (types.RunResult, error) {
			return types.RunResult{}, fmt.Errorf("connection refused")
		},
		types.HashAction("fine"): func() (types.RunResult, error) {
			return types.RunResult{Success: true}, nil
		},
	}
	dispatcher := &mocks.MockDispatcher{
		ListDueJobsFunc: func(context.Context) ([]types.QueueEntry, error) {
			return entriesAt(now.Unix(), "gone", "busy", "broken", "storage", "fine"), nil
		},
		RunJobFunc: func(_ context.Context, entry types.QueueEntry, force bool) (types.RunResult, error) {
			assert.False(t, force)
			return outcomes[entry.ActionHashed]()
		},
	}
	r := client.NewRunner(dispatcher, newConfig(t), testutil.Logger(t), client.WithClock(testutil.NewClock(now).Now))

	r.RunOnce(context.Background())

	assert.Equal(t, client.Stats{Succeeded: 1, Failed: 1, Refused: 2, Errored: 1}, r.Stats())
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	dispatcher := &mocks.MockDispatcher{
		ListDueJobsFunc: func(context.Context) ([]types.QueueEntry, error) {
			return entriesAt(now.Unix(), "a", "b", "c", "d", "e", "f"), nil
		},
		RunJobFunc: func(context.Context, types.QueueEntry, bool) (types.RunResult, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			active.Add(-1)
			return types.RunResult{Success: true}, nil
		},
	}
	r := client.NewRunner(dispatcher, newConfig(t), testutil.Logger(t), client.WithClock(testutil.NewClock(now).Now))

	r.RunOnce(context.Background())

	assert.Len(t, dispatcher.Runs(), 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunner_FanOutPublishesOncePerInterval(t *testing.T) {
	var published atomic.Int32
	gate := cache.NewMemoryCache()
	clock := testutil.NewClock(now)
	due := entriesAt(now.Unix(), "a", "b")

	var runners []*client.Runner
	var dispatchers []*mocks.MockDispatcher
	for i := 0; i < 2; i++ {
		dispatcher := &mocks.MockDispatcher{
			ListDueJobsFunc: func(context.Context) ([]types.QueueEntry, error) { return due, nil },
		}
		broker := &mocks.MockMessageBroker{
			PublishFunc: func(context.Context, []byte) error {
				published.Add(1)
				return nil
			},
		}
		dispatchers = append(dispatchers, dispatcher)
		runners = append(runners, client.NewRunner(dispatcher, newConfig(t), testutil.Logger(t),
			client.WithBroker(broker), client.WithPublishGate(gate), client.WithClock(clock.Now)))
	}

	for _, r := range runners {
		r.RunOnce(context.Background())
	}
	assert.Equal(t, int32(2), published.Load())
	for _, d := range dispatchers {
		assert.Empty(t, d.Runs())
	}

	clock.Advance(time.Minute)
	runners[1].RunOnce(context.Background())
	assert.Equal(t, int32(4), published.Load())
}

func TestRunner_StartRunsConsumedEntries(t *testing.T) {
	due := entriesAt(time.Now().Unix()-10, "a", "b")
	var listed sync.Once
	dispatcher := &mocks.MockDispatcher{
		ListDueJobsFunc: func(context.Context) ([]types.QueueEntry, error) {
			var entries []types.QueueEntry
			listed.Do(func() { entries = due })
			return entries, nil
		},
	}
	broker := &mocks.MockMessageBroker{}
	r := client.NewRunner(dispatcher, newConfig(t), testutil.Logger(t), client.WithBroker(broker))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, func() bool { return len(dispatcher.Runs()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.ElementsMatch(t, due, dispatcher.Runs())
	assert.Equal(t, int64(2), r.Stats().Succeeded)
}
