package grid

import (
	"context"
	"fmt"
	"math"
	"time"

	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/order"
)

// DefaultTolerance 价格比较容差。
const DefaultTolerance = 1e-8

// SyncConfig 对账配置
type SyncConfig struct {
	Tolerance float64
	DryRun    bool
	// AdoptMatching 空闲档位认领同方向同价格的孤儿订单
	AdoptMatching bool
	// Replenish 撤掉偏离订单后立即按正确价格补挂
	Replenish bool
}

// Mismatch 档位与交易所订单不一致的记录。
type Mismatch struct {
	Level     int
	OrderID   string
	WantSide  order.Side
	GotSide   order.Side
	WantPrice float64
	GotPrice  float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("level %d order %s: want %s@%.8g got %s@%.8g",
		m.Level, m.OrderID, m.WantSide, m.WantPrice, m.GotSide, m.GotPrice)
}

// Result 一次对账的增量。DryRun 时各计数表示“将会”发生的变化。
type Result struct {
	DryRun    bool
	Matched   int
	Placed    int
	Cancelled int
	Filled    int
	Released  int
	Adopted   int
	// Skipped 撤掉偏离订单后补单被跳过（例如下单量为 0），档位留在 IDLE
	Skipped int

	Mismatches []Mismatch
	// Orphans 交易所有、本地无对应档位的订单，只上报不撤销
	Orphans []order.OpenOrder
	// AssumedFilled 因从快照消失而推断成交的档位（无法与撤单区分）
	AssumedFilled []int
	// Errors 单笔撤单/补单失败，不中断本轮对账
	Errors []error
}

// Empty 本轮没有任何状态变化。
func (r Result) Empty() bool {
	return r.Placed == 0 && r.Cancelled == 0 && r.Filled == 0 &&
		r.Released == 0 && r.Adopted == 0 && len(r.Mismatches) == 0
}

// EntryFunc 为空闲档位下单并返回订单号，由网格管理器提供。
// 返回 ("", nil) 表示按规则跳过，档位保持 IDLE；error 只表示下单失败。
type EntryFunc func(ctx context.Context, lvl Level) (string, error)

// SyncStats 累计统计
type SyncStats struct {
	Passes        int64
	Cancelled     int64
	Filled        int64
	AssumedFilled int64
	Orphans       int64
	LastPass      time.Time
	LastDuration  time.Duration
}

// Synchronizer 以交易所挂单快照为准校正本地档位。
type Synchronizer struct {
	symbol   string
	source   order.OpenOrderSource
	canceler order.Canceler
	cancels  order.CancelSignal
	entry    EntryFunc
	ignore   func(orderID string) bool
	cfg      SyncConfig
	log      *logger.Logger
	now      func() time.Time

	stats SyncStats
}

type Option func(*Synchronizer)

// WithCancelSignal 提供明确撤单信号，消失的订单据此区分撤单与成交。
func WithCancelSignal(sig order.CancelSignal) Option {
	return func(s *Synchronizer) { s.cancels = sig }
}

func WithEntry(fn EntryFunc) Option {
	return func(s *Synchronizer) { s.entry = fn }
}

// WithIgnore 快照中由其它组件管理的订单（例如对冲单），不作为孤儿上报也不被认领。
func WithIgnore(fn func(orderID string) bool) Option {
	return func(s *Synchronizer) { s.ignore = fn }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Synchronizer) { s.log = l }
}

func WithNow(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

func NewSynchronizer(symbol string, source order.OpenOrderSource, canceler order.Canceler, cfg SyncConfig, opts ...Option) *Synchronizer {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	s := &Synchronizer{
		symbol:   symbol,
		source:   source,
		canceler: canceler,
		cfg:      cfg,
		log:      logger.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) Config() SyncConfig { return s.cfg }

func (s *Synchronizer) Stats() SyncStats { return s.stats }

// Sync 拉取快照并对账。快照拉取失败返回 TransportError，档位不做任何修改。
func (s *Synchronizer) Sync(ctx context.Context, store *Store) (Result, error) {
	start := s.now()
	snap, err := s.source.ListOpenOrders(ctx, s.symbol)
	if err != nil {
		return Result{DryRun: s.cfg.DryRun}, order.WrapTransport("list_open_orders", s.symbol, err)
	}
	res := s.Reconcile(ctx, store, snap)
	s.stats.LastDuration = s.now().Sub(start)
	return res, nil
}

// Reconcile 用给定快照校正档位。每个档位独立处理，单笔失败记入 Result.Errors。
func (s *Synchronizer) Reconcile(ctx context.Context, store *Store, snapshot []order.OpenOrder) Result {
	res := Result{DryRun: s.cfg.DryRun}
	byID := make(map[string]order.OpenOrder, len(snapshot))
	for _, o := range snapshot {
		if o.Symbol != "" && o.Symbol != s.symbol {
			continue
		}
		byID[o.ID] = o
	}
	claimed := make(map[string]bool, len(byID))

	for _, lvl := range store.Levels() {
		if !lvl.Active || lvl.OrderID == "" {
			continue
		}
		o, ok := byID[lvl.OrderID]
		if !ok {
			s.resolveMissing(store, lvl, &res)
			continue
		}
		claimed[o.ID] = true
		if !s.diverges(lvl, o) {
			res.Matched++
			continue
		}
		m := Mismatch{
			Level:     lvl.Index,
			OrderID:   o.ID,
			WantSide:  lvl.Side,
			GotSide:   o.Side,
			WantPrice: lvl.Price,
			GotPrice:  o.Price,
		}
		res.Mismatches = append(res.Mismatches, m)
		s.log.LogRisk("level_mismatch", map[string]interface{}{
			"symbol": s.symbol, "detail": m.String(), "dry_run": s.cfg.DryRun,
		})
		if s.cfg.DryRun {
			res.Cancelled++
			continue
		}
		s.cancelStale(ctx, store, lvl, &res)
	}

	taken := make(map[int]bool)
	for _, o := range snapshot {
		if claimed[o.ID] || (o.Symbol != "" && o.Symbol != s.symbol) {
			continue
		}
		if s.ignore != nil && s.ignore(o.ID) {
			continue
		}
		if s.cfg.AdoptMatching && s.adopt(store, o, taken, &res) {
			continue
		}
		res.Orphans = append(res.Orphans, o)
	}
	if len(res.Orphans) > 0 {
		ids := make([]string, len(res.Orphans))
		for i, o := range res.Orphans {
			ids[i] = o.ID
		}
		s.log.LogRisk("orphan_orders", map[string]interface{}{"symbol": s.symbol, "order_ids": ids})
	}

	s.stats.Passes++
	s.stats.Cancelled += int64(res.Cancelled)
	s.stats.Filled += int64(res.Filled)
	s.stats.AssumedFilled += int64(len(res.AssumedFilled))
	s.stats.Orphans += int64(len(res.Orphans))
	s.stats.LastPass = s.now()
	return res
}

func (s *Synchronizer) resolveMissing(store *Store, lvl Level, res *Result) {
	if s.cancels != nil && s.cancels.Canceled(lvl.OrderID) {
		res.Released++
		if !s.cfg.DryRun {
			if err := store.Release(lvl.Index); err != nil {
				res.Errors = append(res.Errors, err)
				return
			}
		}
		s.log.LogOrder("canceled_externally", lvl.OrderID, map[string]interface{}{
			"symbol": s.symbol, "level": lvl.Index, "dry_run": s.cfg.DryRun,
		})
		return
	}
	res.Filled++
	res.AssumedFilled = append(res.AssumedFilled, lvl.Index)
	if !s.cfg.DryRun {
		if err := store.MarkFilled(lvl.Index); err != nil {
			res.Errors = append(res.Errors, err)
			return
		}
	}
	s.log.LogOrder("assumed_filled", lvl.OrderID, map[string]interface{}{
		"symbol": s.symbol, "level": lvl.Index, "side": string(lvl.Side), "price": lvl.Price, "dry_run": s.cfg.DryRun,
	})
}

func (s *Synchronizer) cancelStale(ctx context.Context, store *Store, lvl Level, res *Result) {
	if err := s.canceler.Cancel(ctx, s.symbol, lvl.OrderID); err != nil {
		err = order.WrapTransport("cancel", s.symbol, err)
		res.Errors = append(res.Errors, err)
		s.log.LogError(err, map[string]interface{}{"symbol": s.symbol, "level": lvl.Index, "order_id": lvl.OrderID})
		return
	}
	if err := store.Release(lvl.Index); err != nil {
		res.Errors = append(res.Errors, err)
		return
	}
	res.Cancelled++
	s.log.LogOrder("cancel_stale", lvl.OrderID, map[string]interface{}{"symbol": s.symbol, "level": lvl.Index})

	if !s.cfg.Replenish || s.entry == nil {
		return
	}
	fresh, _ := store.Level(lvl.Index)
	id, err := s.entry(ctx, fresh)
	if err != nil {
		err = order.WrapTransport("place", s.symbol, err)
		res.Errors = append(res.Errors, err)
		s.log.LogError(err, map[string]interface{}{"symbol": s.symbol, "level": lvl.Index})
		return
	}
	if id == "" {
		res.Skipped++
		s.log.LogOrder("replenish_skipped", lvl.OrderID, map[string]interface{}{"symbol": s.symbol, "level": lvl.Index})
		return
	}
	if err := store.Activate(lvl.Index, id); err != nil {
		res.Errors = append(res.Errors, err)
		return
	}
	res.Placed++
	s.log.LogOrder("replenish", id, map[string]interface{}{"symbol": s.symbol, "level": lvl.Index})
}

// adopt 为孤儿订单寻找同方向同价格的空闲档位。
func (s *Synchronizer) adopt(store *Store, o order.OpenOrder, taken map[int]bool, res *Result) bool {
	for _, lvl := range store.Levels() {
		if taken[lvl.Index] || lvl.Status() != StatusIdle || lvl.Side != o.Side || !s.samePrice(lvl.Price, o.Price) {
			continue
		}
		if !s.cfg.DryRun {
			if err := store.Activate(lvl.Index, o.ID); err != nil {
				res.Errors = append(res.Errors, err)
				return false
			}
		}
		taken[lvl.Index] = true
		res.Adopted++
		s.log.LogOrder("adopt_orphan", o.ID, map[string]interface{}{
			"symbol": s.symbol, "level": lvl.Index, "dry_run": s.cfg.DryRun,
		})
		return true
	}
	return false
}

func (s *Synchronizer) diverges(lvl Level, o order.OpenOrder) bool {
	return lvl.Side != o.Side || !s.samePrice(lvl.Price, o.Price)
}

func (s *Synchronizer) samePrice(a, b float64) bool {
	return math.Abs(a-b) <= s.cfg.Tolerance
}
