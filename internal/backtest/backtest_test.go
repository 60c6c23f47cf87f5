package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-maker-go/grid"
	"grid-maker-go/internal/engine"
	"grid-maker-go/internal/lifecycle"
	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

func settings() engine.Settings {
	return engine.Settings{
		Symbol: "XRPUSDC",
		Build: grid.BuildParams{
			Ladder: strategy.LadderParams{
				Lower: 0.85, Upper: 0.95, Levels: 20, Spacing: strategy.SpacingArithmetic, Tick: 1e-6,
			},
			Direction: strategy.DirectionBoth,
			Targets: strategy.TargetParams{
				Tick: 1e-6, TakeProfitMode: strategy.TakeProfitPercent, TakeProfitPct: 0.003,
			},
		},
		Sizing:            strategy.SizingParams{BaseSize: 50},
		Constraints:       order.SymbolConstraints{TickSize: 1e-6, StepSize: 0.01},
		RebalanceInterval: 5 * time.Minute,
		EntryOnTouch:      true,
		ClientIDPrefix:    "BT",
	}
}

func TestRunFillsCrossedLevels(t *testing.T) {
	res, err := Run(context.Background(), settings(), []float64{0.9, 0.8699, 0.88}, Options{SyncEvery: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 0.8699, res.Min)
	assert.Equal(t, 0.9, res.Max)
	assert.InDelta(t, 3.3444, res.MaxDrawdownPct, 1e-3)

	// 0.9 挂出 20 笔，0.8699 穿过 0.87..0.895 并触价入场 0.90，0.88 再成交 0.90
	assert.Equal(t, int64(21), res.Entries)
	assert.Equal(t, int64(7), res.Fills)
	// 0.87 和 0.875 的止盈在 0.88 被触及
	assert.Equal(t, int64(2), res.PositionsClosed)
	assert.Equal(t, int64(2), res.Wins)
	assert.InDelta(t, (0.87261-0.87)*50+(0.877625-0.875)*50, res.RealizedPnL, 1e-9)

	assert.Equal(t, 14, res.OpenOrders)
	assert.InDelta(t, -50.0, res.NetExposure, 1e-9)
	assert.Equal(t, lifecycle.StateActive, res.FinalState)
}

func TestDrawdownSeries(t *testing.T) {
	var d drawdown
	if d.mean() != 0 {
		t.Fatalf("empty series mean = %v", d.mean())
	}
	for _, p := range []float64{10, 12, 9, 11, 6, 13} {
		d.observe(p)
	}
	if d.min != 6 || d.max != 13 {
		t.Fatalf("min/max = %v/%v", d.min, d.max)
	}
	if got := d.mean(); got != 61.0/6 {
		t.Fatalf("mean = %v", got)
	}
	// 峰值 12 跌到 6
	if d.maxDD != 0.5 {
		t.Fatalf("max drawdown = %v, want 0.5", d.maxDD)
	}
}

func TestRunRebuildsOnInterval(t *testing.T) {
	s := settings()
	s.Build.Direction = strategy.DirectionLong
	prices := []float64{0.96, 0.96, 0.96, 0.96, 0.96, 0.96}
	res, err := Run(context.Background(), s, prices, Options{Step: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Rebuilds)
	assert.Equal(t, int64(0), res.Entries)
}

func TestRunConfigError(t *testing.T) {
	s := settings()
	s.Build.Ladder.Upper = s.Build.Ladder.Lower
	_, err := Run(context.Background(), s, []float64{0.9}, Options{})
	assert.Error(t, err)
}

func TestRunHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, settings(), []float64{0.9}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
