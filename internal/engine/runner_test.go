package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-maker-go/internal/lifecycle"
)

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerSerializesTicksAndCommands(t *testing.T) {
	h := newHarness(t, testSettings())
	prices := make(chan float64)
	fills := 0
	r := NewRunner(h.mgr, prices, RunnerConfig{
		BeforeTick: func(_ context.Context, m *GridManager, price float64) {
			for _, o := range h.ex.Cross(m.Symbol(), price) {
				if m.HandleFill(o.ID) {
					fills++
				}
			}
		},
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	assert.Error(t, r.Start(ctx))

	// 0.8699 挂出两侧挂单，0.88 触价入场 0.88..0.90，0.86 穿过其中七笔买单
	prices <- 0.8699
	prices <- 0.88
	prices <- 0.86

	var stats Stats
	require.NoError(t, r.Do(ctx, func(m *GridManager) { stats = m.Stats() }))
	assert.Equal(t, int64(3), stats.Ticks)
	assert.Equal(t, 7, fills)
	assert.Equal(t, int64(7), stats.Fills)

	close(prices)
	waitDone(t, r)
	assert.ErrorIs(t, r.Do(ctx, func(*GridManager) {}), ErrRunnerStopped)
	assert.NoError(t, r.Stop())
}

func TestRunnerStopsWhenClosed(t *testing.T) {
	h := newHarness(t, testSettings())
	r := NewRunner(h.mgr, make(chan float64), RunnerConfig{}, nil)
	require.NoError(t, r.Start(context.Background()))

	require.NoError(t, r.Do(context.Background(), func(m *GridManager) {
		require.NoError(t, m.Close("test"))
	}))
	waitDone(t, r)
	assert.Equal(t, lifecycle.StateClosed, h.mgr.State())
}

func TestRunnerStopAndContext(t *testing.T) {
	h := newHarness(t, testSettings())
	r := NewRunner(h.mgr, make(chan float64), RunnerConfig{SyncInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
	waitDone(t, r)
	assert.Equal(t, lifecycle.StateActive, h.mgr.State())

	ctx, cancel := context.WithCancel(context.Background())
	r2 := NewRunner(h.mgr, make(chan float64), RunnerConfig{}, nil)
	require.NoError(t, r2.Start(ctx))
	cancel()
	waitDone(t, r2)
}

func TestRunnerAutoRetry(t *testing.T) {
	h := newHarness(t, testSettings())
	require.NoError(t, h.mgr.Fail("feed stalled"))

	prices := make(chan float64)
	r := NewRunner(h.mgr, prices, RunnerConfig{RetryInterval: time.Minute}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))

	prices <- 0.9
	var state lifecycle.State
	require.NoError(t, r.Do(ctx, func(m *GridManager) { state = m.State() }))
	assert.Equal(t, lifecycle.StateError, state)

	h.clock.Advance(time.Minute)
	prices <- 0.9
	require.NoError(t, r.Do(ctx, func(m *GridManager) { state = m.State() }))
	assert.Equal(t, lifecycle.StateActive, state)
	assert.Len(t, h.ex.Placed(), 20)
	require.NoError(t, r.Stop())
}
