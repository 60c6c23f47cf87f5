// Package backtest 用历史价格序列离线驱动网格：纸面交易所撮合，手动时钟推进。
package backtest

import (
	"context"
	"math"
	"time"

	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/internal/clock"
	"grid-maker-go/internal/engine"
	"grid-maker-go/internal/lifecycle"
	"grid-maker-go/order"
	"grid-maker-go/sim"
)

// Options 回测参数
type Options struct {
	Step      time.Duration // 相邻价格的时间间隔，影响定时重建
	SyncEvery int           // 每 N 个价格对账一次，0 不对账
	Start     time.Time
	Logger    *logger.Logger
}

// Result 单个交易对的回测汇总。FinalState 为关闭网格前的状态。
type Result struct {
	Symbol         string
	Count          int
	Min            float64
	Max            float64
	Mean           float64
	MaxDrawdownPct float64

	Entries     int64
	Simulated   int64
	Skipped     int64
	Fills       int64
	Rebuilds    int64
	Errors      int64
	FinalState  lifecycle.State
	OpenOrders  int
	NetExposure float64

	PositionsClosed int64
	Wins            int64
	Losses          int64
	RealizedPnL     float64
}

// Run 逐个价格先撮合、结算止盈止损，再驱动网格。价格无效的点由网格自行忽略。
func Run(ctx context.Context, s engine.Settings, prices []float64, opts Options) (Result, error) {
	if opts.Step <= 0 {
		opts.Step = time.Second
	}
	if opts.Start.IsZero() {
		opts.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	clk := clock.NewManual(opts.Start)
	ledger := order.NewCancelLedger(time.Hour, clk)
	ex := sim.NewExchange(ledger)

	mgr, err := engine.NewGridManager(s, engine.Components{
		Gateway: ex,
		Cancels: ledger,
		Logger:  opts.Logger,
		Clock:   clk,
		Fills:   order.NewFillTracker(200, 5*time.Minute, clk),
	})
	if err != nil {
		return Result{}, err
	}

	var series drawdown
	for i, p := range prices {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		series.observe(p)
		clk.Advance(opts.Step)
		for _, o := range ex.Cross(s.Symbol, p) {
			mgr.HandleFill(o.ID)
		}
		for _, pc := range ex.Settle(s.Symbol, p) {
			mgr.HandlePositionClose(ctx, pc)
		}
		mgr.Update(ctx, p)
		if opts.SyncEvery > 0 && (i+1)%opts.SyncEvery == 0 && mgr.State() == lifecycle.StateActive {
			_, _ = mgr.Sync(ctx)
		}
	}

	stats := mgr.Stats()
	res := Result{
		Symbol:          s.Symbol,
		Count:           len(prices),
		Min:             series.min,
		Max:             series.max,
		Mean:            series.mean(),
		MaxDrawdownPct:  series.maxDD * 100,
		Entries:         stats.Entries,
		Simulated:       stats.Simulated,
		Skipped:         stats.Skipped,
		Fills:           stats.Fills,
		Rebuilds:        stats.Rebuilds,
		Errors:          stats.Errors,
		FinalState:      mgr.State(),
		NetExposure:     mgr.Exposure().Net,
		PositionsClosed: stats.PositionsClosed,
		Wins:            stats.Wins,
		Losses:          stats.Losses,
		RealizedPnL:     stats.RealizedPnL,
	}
	_ = mgr.Close("backtest finished")
	res.OpenOrders = ex.OpenCount()
	return res, nil
}

// drawdown 价格序列的极值、均值和自峰值起的最大回撤（比例）。
type drawdown struct {
	n     int
	sum   float64
	min   float64
	max   float64
	peak  float64
	maxDD float64
}

func (d *drawdown) observe(p float64) {
	if d.n == 0 {
		d.min, d.max, d.peak = p, p, p
	}
	d.n++
	d.sum += p
	d.min = math.Min(d.min, p)
	d.max = math.Max(d.max, p)
	d.peak = math.Max(d.peak, p)
	if d.peak > 0 {
		d.maxDD = math.Max(d.maxDD, 1-p/d.peak)
	}
}

func (d *drawdown) mean() float64 {
	if d.n == 0 {
		return 0
	}
	return d.sum / float64(d.n)
}
