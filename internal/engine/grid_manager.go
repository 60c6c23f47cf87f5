package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"grid-maker-go/grid"
	"grid-maker-go/hedge"
	"grid-maker-go/infrastructure/alert"
	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/infrastructure/monitor"
	"grid-maker-go/internal/clock"
	"grid-maker-go/internal/lifecycle"
	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

// ErrNotActive 生命周期不在 ACTIVE 时拒绝的操作。
var ErrNotActive = errors.New("grid is not active")

// Components 网格管理器依赖组件
type Components struct {
	Gateway  order.Gateway
	Orders   order.OpenOrderSource // 可选，默认使用 Gateway；通常注入账户级 order.Book
	Cancels  order.CancelSignal    // 可选
	Logger   *logger.Logger
	Monitor  *monitor.Monitor
	Alerts   *alert.Manager
	Clock    clock.Clock
	Observer lifecycle.Observer
	Fills    *order.FillTracker
}

// Stats 管理器统计
type Stats struct {
	Ticks        int64
	IgnoredTicks int64
	Entries      int64
	Simulated    int64
	Skipped      int64
	Fills        int64
	Rebuilds     int64
	SyncPasses   int64
	Errors       int64

	PositionsClosed int64
	Wins            int64
	Losses          int64
	RealizedPnL     float64
}

// Exposure 按成交/挂单统计的净敞口。
type Exposure struct {
	LongFilled   int
	ShortFilled  int
	LongPending  int
	ShortPending int
	Net          float64
}

// FillSummary 成交跟踪器的窗口统计，未注入跟踪器时为零值。
type FillSummary struct {
	Total      int
	Assumed    int
	Recent     int
	RatePerMin float64
}

// Summary 管理器状态快照
type Summary struct {
	Symbol     string
	Lifecycle  lifecycle.Summary
	Levels     grid.Counts
	Generation int
	Size       float64
	LastPrice  float64
	DryRun     bool
	Exposure   Exposure
	Stats      Stats
	Fills      FillSummary
	Hedge      hedge.Summary
}

// GridManager 单个交易对的网格。由唯一的 Runner 串行驱动，内部不加锁。
type GridManager struct {
	settings Settings
	gateway  order.Gateway
	orders   order.OpenOrderSource
	cancels  order.CancelSignal
	log      *logger.Logger
	mon      *monitor.Monitor
	alerts   *alert.Manager
	clock    clock.Clock
	fills    *order.FillTracker
	observer lifecycle.Observer

	lc    *lifecycle.Machine
	store *grid.Store
	sync  *grid.Synchronizer
	hedge *hedge.Manager
	size  float64

	pending    *Settings
	builtAt    time.Time
	needsRest  bool
	zeroWarned bool
	lastPrice  float64
	seq        int64

	stats Stats
}

// NewGridManager 构建阶梯和档位并进入 ACTIVE。
// 参数错误时生命周期转入 ERROR（观察者会收到通知），返回 *strategy.ConfigError。
func NewGridManager(s Settings, c Components) (*GridManager, error) {
	if c.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.Real
	}
	if c.Orders == nil {
		c.Orders = c.Gateway
	}

	m := &GridManager{
		gateway: c.Gateway,
		orders:  c.Orders,
		cancels: c.Cancels,
		log:     c.Logger.Named("grid").WithFields(map[string]interface{}{"symbol": s.Symbol}),
		mon:     c.Monitor,
		alerts:  c.Alerts,
		clock:   c.Clock,
		fills:   c.Fills,
		lc:      lifecycle.New(c.Clock),
		store:   grid.NewStore(),
	}
	obs := lifecycle.Observers{m.internalObserver()}
	if c.Observer != nil {
		obs = append(obs, c.Observer)
	}
	m.observer = obs

	levels, err := grid.BuildLevels(s.Build)
	if err != nil {
		m.settings = s
		m.transition(lifecycle.StateError, err.Error())
		return nil, err
	}
	m.apply(s)
	m.store.Replace(levels)
	m.builtAt = m.clock.Now()
	m.needsRest = true

	m.log.LogGrid("grid_built", map[string]interface{}{
		"levels":     len(levels),
		"lower":      levels[0].Price,
		"upper":      levels[len(levels)-1].Price,
		"spacing":    s.Build.Ladder.Spacing.String(),
		"direction":  s.Build.Direction.String(),
		"size":       m.size,
		"sizing":     s.Sizing.String(),
		"dry_run":    s.DryRun,
		"on_touch":   s.EntryOnTouch,
		"hedge":      s.Hedge.Enabled,
		"rebalance":  s.RebalanceInterval.String(),
		"generation": m.store.Generation(),
	})
	m.publish()
	if err := m.transition(lifecycle.StateActive, "grid built"); err != nil {
		return nil, err
	}
	return m, nil
}

// apply 切换参数并重建依赖参数的组件。
func (m *GridManager) apply(s Settings) {
	if s.ClientIDPrefix == "" {
		s.ClientIDPrefix = "GRID"
	}
	s.Sync.DryRun = s.DryRun
	m.settings = s
	m.size = s.Constraints.FloorQty(s.Sizing.EffectiveSize())

	hopts := hedge.Options{
		Constraints: s.Constraints,
		DryRun:      s.DryRun,
		Logger:      m.log,
		Monitor:     m.mon,
	}
	if m.hedge == nil {
		m.hedge = hedge.NewManager(s.Symbol, s.Hedge, m.gateway, hopts)
	} else {
		m.hedge.Reconfigure(s.Hedge, hopts)
	}

	opts := []grid.Option{
		grid.WithEntry(m.replenish),
		grid.WithIgnore(m.hedge.Owns),
		grid.WithLogger(m.log),
		grid.WithNow(m.clock.Now),
	}
	if m.cancels != nil {
		opts = append(opts, grid.WithCancelSignal(m.cancels))
	}
	m.sync = grid.NewSynchronizer(s.Symbol, m.orders, m.gateway, s.Sync, opts...)
}

func (m *GridManager) Symbol() string { return m.settings.Symbol }

func (m *GridManager) Settings() Settings { return m.settings }

func (m *GridManager) State() lifecycle.State { return m.lc.State() }

func (m *GridManager) Lifecycle() *lifecycle.Machine { return m.lc }

// Levels 当前档位副本
func (m *GridManager) Levels() []grid.Level { return m.store.Levels() }

func (m *GridManager) Generation() int { return m.store.Generation() }

// Size 每档下单量（已扣除手续费并按 stepSize 取整）
func (m *GridManager) Size() float64 { return m.size }

func (m *GridManager) Stats() Stats { return m.stats }

// Update 处理一次价格更新。非 ACTIVE 时忽略；本次 tick 内的错误转入 ERROR，不向上抛出。
func (m *GridManager) Update(ctx context.Context, price float64) {
	if !m.lc.Is(lifecycle.StateActive) {
		m.stats.IgnoredTicks++
		return
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		m.log.LogRisk("invalid_price", map[string]interface{}{"price": price})
		return
	}
	m.stats.Ticks++
	m.lastPrice = price
	m.mon.UpdateLastPrice(m.settings.Symbol, price)

	if err := m.tick(ctx, price); err != nil {
		m.fail(err)
	}
	m.publish()
}

// tick 模拟盘先结算，然后按需重建；重建后的首个价格总是挂出区间两侧的挂单，之后才按触价入场。
func (m *GridManager) tick(ctx context.Context, price float64) error {
	if m.settings.DryRun {
		if err := m.settlePaper(ctx, price); err != nil {
			return err
		}
	}
	if m.rebalanceDue() {
		if err := m.rebuild("interval"); err != nil {
			return err
		}
	}
	var err error
	switch {
	case m.needsRest:
		err = m.placeResting(ctx, price)
	case m.settings.EntryOnTouch:
		err = m.enterOnTouch(ctx, price)
	}
	if err != nil {
		return err
	}
	return m.hedgeTick(ctx, price)
}

func (m *GridManager) rebalanceDue() bool {
	iv := m.settings.RebalanceInterval
	return iv > 0 && m.clock.Now().Sub(m.builtAt) >= iv
}

// Rebalance 立即丢弃全部档位并按当前（或待生效的）参数重建。
func (m *GridManager) Rebalance() error {
	if !m.lc.Is(lifecycle.StateActive) {
		return ErrNotActive
	}
	if err := m.rebuild("manual"); err != nil {
		m.fail(err)
		return err
	}
	m.publish()
	return nil
}

// rebuild 丢弃阶梯与档位后重新生成。交易所上的旧挂单不撤销，下次对账时作为孤儿上报。
func (m *GridManager) rebuild(reason string) error {
	s := m.settings
	if m.pending != nil {
		s = *m.pending
		m.pending = nil
	}
	levels, err := grid.BuildLevels(s.Build)
	if err != nil {
		return err
	}
	prev := m.store.Counts()
	m.apply(s)
	m.store.Replace(levels)
	m.builtAt = m.clock.Now()
	m.needsRest = true
	m.zeroWarned = false
	m.stats.Rebuilds++
	m.mon.RecordRebuild(s.Symbol)

	fields := map[string]interface{}{
		"reason":           reason,
		"generation":       m.store.Generation(),
		"levels":           len(levels),
		"discarded_active": prev.Active,
		"discarded_filled": prev.Filled,
	}
	if prev.Active > 0 && !s.DryRun {
		m.log.LogRisk("rebuild_discarded_orders", fields)
	}
	m.log.LogGrid("grid_rebuilt", fields)
	return nil
}

// Reconfigure 校验新参数，在下一次重建时生效。
func (m *GridManager) Reconfigure(s Settings) error {
	if m.lc.Is(lifecycle.StateClosed) {
		return ErrNotActive
	}
	if s.Symbol != m.settings.Symbol {
		return fmt.Errorf("reconfigure %s with settings for %s", m.settings.Symbol, s.Symbol)
	}
	if _, err := grid.BuildLevels(s.Build); err != nil {
		return err
	}
	m.pending = &s
	m.log.LogGrid("reconfigure_pending", map[string]interface{}{
		"lower":   s.Build.Ladder.Lower,
		"upper":   s.Build.Ladder.Upper,
		"levels":  s.Build.Ladder.Levels,
		"dry_run": s.DryRun,
	})
	return nil
}

// placeResting 重建后首个价格：买单挂在价格下方、卖单挂在上方，跨价的档位跳过。
func (m *GridManager) placeResting(ctx context.Context, price float64) error {
	prices := m.store.Prices()
	lower, upper := prices[0], prices[len(prices)-1]
	dir := m.settings.Build.Direction

	switch {
	case price < lower:
		m.log.Warn("price below grid",
			zap.Float64("price", price), zap.Float64("lower", lower), zap.Float64("upper", upper))
		if dir == strategy.DirectionShort {
			return nil
		}
	case price > upper:
		m.log.Warn("price above grid",
			zap.Float64("price", price), zap.Float64("lower", lower), zap.Float64("upper", upper))
		if dir == strategy.DirectionLong {
			return nil
		}
	}

	placed, skipped := 0, 0
	for _, lvl := range m.store.Levels() {
		if lvl.Status() != grid.StatusIdle || !dir.Allows(lvl.Side) {
			continue
		}
		if (lvl.Side == order.Buy && lvl.Price >= price) || (lvl.Side == order.Sell && lvl.Price <= price) {
			skipped++
			continue
		}
		ok, err := m.enter(ctx, lvl)
		if err != nil {
			return err
		}
		if ok {
			placed++
		}
	}
	m.needsRest = false
	m.log.LogGrid("resting_orders_placed", map[string]interface{}{
		"placed":  placed,
		"skipped": skipped,
		"price":   price,
		"dry_run": m.settings.DryRun,
	})
	return nil
}

// enterOnTouch 价格触及档位即入场：买单 price<=level，卖单 price>=level。
func (m *GridManager) enterOnTouch(ctx context.Context, price float64) error {
	dir := m.settings.Build.Direction
	for _, lvl := range m.store.Levels() {
		if lvl.Status() != grid.StatusIdle || !dir.Allows(lvl.Side) {
			continue
		}
		touched := (lvl.Side == order.Buy && price <= lvl.Price) ||
			(lvl.Side == order.Sell && price >= lvl.Price)
		if !touched {
			continue
		}
		if _, err := m.enter(ctx, lvl); err != nil {
			return err
		}
	}
	return nil
}

// skipError 档位不满足下单条件，跳过而非失败。
type skipError struct {
	reason string
	err    error
}

func (e *skipError) Error() string { return fmt.Sprintf("entry skipped (%s): %v", e.reason, e.err) }

func (e *skipError) Unwrap() error { return e.err }

var errZeroSize = errors.New("effective order size is zero")

// request 组装下单请求并做本地校验。
func (m *GridManager) request(lvl grid.Level) (order.PlaceRequest, error) {
	if m.size <= 0 {
		return order.PlaceRequest{}, &skipError{reason: "zero_size", err: errZeroSize}
	}
	if err := strategy.ValidateTargets(lvl.Price, lvl.TakeProfit, lvl.StopLoss, lvl.Side); err != nil {
		return order.PlaceRequest{}, &skipError{reason: "invalid_targets", err: err}
	}
	m.seq++
	req := order.PlaceRequest{
		Symbol:     m.settings.Symbol,
		Side:       lvl.Side,
		Price:      lvl.Price,
		Size:       m.size,
		TakeProfit: lvl.TakeProfit,
		StopLoss:   lvl.StopLoss,
		ClientID:   fmt.Sprintf("%s-%d-%d-%d", m.settings.ClientIDPrefix, m.store.Generation(), lvl.Index, m.seq),
		Sizing:     m.settings.Sizing.Order(),
	}
	if err := m.settings.Constraints.Check(req); err != nil {
		return order.PlaceRequest{}, &skipError{reason: "constraints", err: err}
	}
	return req, nil
}

// enter 单个档位入场。返回 false 表示按规则跳过；只有网关错误会返回 error。
func (m *GridManager) enter(ctx context.Context, lvl grid.Level) (bool, error) {
	sym := m.settings.Symbol
	req, err := m.request(lvl)
	if err != nil {
		m.skip(lvl, err)
		return false, nil
	}

	if m.settings.DryRun {
		if err := m.store.Activate(lvl.Index, ""); err != nil {
			return false, err
		}
		m.stats.Simulated++
		m.mon.RecordOrderSimulated(sym, string(lvl.Side))
		m.log.LogOrder("simulated_entry", req.ClientID, map[string]interface{}{
			"level": lvl.Index, "side": string(lvl.Side), "price": lvl.Price, "size": req.Size,
		})
		return true, nil
	}

	id, err := m.gateway.Place(ctx, req)
	if err != nil {
		return false, order.WrapTransport("place", sym, err)
	}
	if err := m.store.Activate(lvl.Index, id); err != nil {
		return false, err
	}
	m.stats.Entries++
	m.mon.RecordOrderPlaced(sym, string(lvl.Side))
	m.log.LogOrder("entry_placed", id, map[string]interface{}{
		"level": lvl.Index, "side": string(lvl.Side), "price": lvl.Price, "size": req.Size,
		"notional": req.Notional(), "client_id": req.ClientID,
	})
	return true, nil
}

func (m *GridManager) skip(lvl grid.Level, err error) {
	var se *skipError
	reason := "unknown"
	if errors.As(err, &se) {
		reason = se.reason
	}
	m.stats.Skipped++
	m.mon.RecordEntrySkipped(m.settings.Symbol, reason)

	if reason == "zero_size" {
		if !m.zeroWarned {
			m.zeroWarned = true
			m.log.Warn("effective size is zero, entries suppressed",
				zap.String("sizing", m.settings.Sizing.String()))
		}
		return
	}
	m.log.LogError(err, map[string]interface{}{"level": lvl.Index, "side": string(lvl.Side), "price": lvl.Price})
}

// replenish 对账撤掉偏离订单后的补单，激活由对账器完成。
// 不满足下单条件时记为跳过并返回空订单号，不算作网关错误。
func (m *GridManager) replenish(ctx context.Context, lvl grid.Level) (string, error) {
	req, err := m.request(lvl)
	if err != nil {
		m.skip(lvl, err)
		return "", nil
	}
	id, err := m.gateway.Place(ctx, req)
	if err != nil {
		return "", err
	}
	m.stats.Entries++
	m.mon.RecordOrderPlaced(m.settings.Symbol, string(lvl.Side))
	return id, nil
}

// Sync 拉取挂单快照并对账。快照拉取失败时转入 ERROR。
func (m *GridManager) Sync(ctx context.Context) (grid.Result, error) {
	if !m.lc.Is(lifecycle.StateActive) {
		return grid.Result{}, ErrNotActive
	}
	sym := m.settings.Symbol
	start := m.clock.Now()

	pending := make(map[int]grid.Level)
	for _, lvl := range m.store.Levels() {
		if lvl.Active && lvl.OrderID != "" {
			pending[lvl.Index] = lvl
		}
	}

	res, err := m.sync.Sync(ctx, m.store)
	if err != nil {
		m.fail(err)
		return res, err
	}
	m.stats.SyncPasses++
	m.mon.RecordSync(sym, len(res.Mismatches), len(res.Orphans), m.clock.Now().Sub(start).Seconds())

	if !res.DryRun {
		m.mon.RecordOrdersCanceled(sym, res.Cancelled)
		m.mon.RecordOrdersFilled(sym, len(res.AssumedFilled), true)
		for _, idx := range res.AssumedFilled {
			lvl := pending[idx]
			m.stats.Fills++
			if m.fills != nil {
				m.fills.Record(order.FillEvent{
					OrderID: lvl.OrderID, Level: idx, Side: lvl.Side, Price: lvl.Price, Assumed: true,
				})
			}
		}
	}
	if len(res.AssumedFilled) > 0 {
		m.log.LogRisk("fills_assumed", map[string]interface{}{
			"levels": res.AssumedFilled, "dry_run": res.DryRun,
		})
	}
	for _, e := range res.Errors {
		var te *order.TransportError
		if errors.As(e, &te) {
			m.mon.RecordTransportError(sym, te.Op)
		}
	}
	if !res.Empty() || len(res.Orphans) > 0 {
		m.log.LogGrid("reconciled", map[string]interface{}{
			"dry_run":    res.DryRun,
			"matched":    res.Matched,
			"placed":     res.Placed,
			"cancelled":  res.Cancelled,
			"filled":     res.Filled,
			"released":   res.Released,
			"adopted":    res.Adopted,
			"mismatches": len(res.Mismatches),
			"orphans":    len(res.Orphans),
			"errors":     len(res.Errors),
		})
	}
	m.publish()
	return res, nil
}

// HandleFill 处理交易所推送的成交。未知订单或 CLOSED 后返回 false。
func (m *GridManager) HandleFill(orderID string) bool {
	if m.lc.Is(lifecycle.StateClosed) {
		return false
	}
	i, ok := m.store.ByOrderID(orderID)
	if !ok {
		return false
	}
	lvl, _ := m.store.Level(i)
	if err := m.store.MarkFilled(i); err != nil {
		m.log.LogError(err, map[string]interface{}{"order_id": orderID})
		return false
	}
	m.recordFill(orderID, lvl)
	m.publish()
	return true
}

func (m *GridManager) recordFill(orderID string, lvl grid.Level) {
	m.stats.Fills++
	m.mon.RecordOrdersFilled(m.settings.Symbol, 1, false)
	if m.fills != nil {
		m.fills.Record(order.FillEvent{OrderID: orderID, Level: lvl.Index, Side: lvl.Side, Price: lvl.Price})
	}
	m.log.LogOrder("filled", orderID, map[string]interface{}{
		"level": lvl.Index, "side": string(lvl.Side), "price": lvl.Price, "dry_run": m.settings.DryRun,
	})
}

// HandlePositionClose 仓位被止盈/止损/手动平掉：对应的 FILLED 档位回到 IDLE。
// 开启 ActiveRebuy 且处于 ACTIVE 时立即在该档位重新入场。找不到档位时返回 false。
func (m *GridManager) HandlePositionClose(ctx context.Context, pc order.ClosedPosition) bool {
	if m.lc.Is(lifecycle.StateClosed) {
		return false
	}
	i, ok := m.filledLevelAt(pc.Side, pc.EntryPrice)
	if !ok {
		return false
	}
	if err := m.store.Reopen(i); err != nil {
		m.log.LogError(err, map[string]interface{}{"order_id": pc.OrderID})
		return false
	}
	pnl := pc.PnL()
	m.stats.PositionsClosed++
	m.stats.RealizedPnL += pnl
	switch {
	case pnl > 0:
		m.stats.Wins++
	case pnl < 0:
		m.stats.Losses++
	}
	m.mon.RecordPositionClosed(m.settings.Symbol, string(pc.Reason), m.stats.RealizedPnL)
	m.log.LogOrder("position_closed", pc.OrderID, map[string]interface{}{
		"level": i, "side": string(pc.Side), "entry": pc.EntryPrice, "exit": pc.ExitPrice,
		"size": pc.Size, "reason": string(pc.Reason), "pnl": pnl, "realized": m.stats.RealizedPnL,
	})

	if m.settings.ActiveRebuy && m.lc.Is(lifecycle.StateActive) {
		lvl, _ := m.store.Level(i)
		if _, err := m.enter(ctx, lvl); err != nil {
			m.fail(err)
		}
	}
	m.publish()
	return true
}

// filledLevelAt 按开仓方向和价格定位 FILLED 档位，容差为半个 tick。
func (m *GridManager) filledLevelAt(side order.Side, price float64) (int, bool) {
	tol := math.Max(m.settings.Build.Ladder.Tick/2, grid.DefaultTolerance)
	for _, lvl := range m.store.Levels() {
		if lvl.Filled && lvl.Side == side && math.Abs(lvl.Price-price) <= tol {
			return lvl.Index, true
		}
	}
	return 0, false
}

// settlePaper 模拟盘结算：价格穿过模拟挂单即成交，成交档位按止盈/止损价平仓。
func (m *GridManager) settlePaper(ctx context.Context, price float64) error {
	for _, lvl := range m.store.Levels() {
		if !lvl.Active || lvl.OrderID != "" {
			continue
		}
		if (lvl.Side == order.Buy && price > lvl.Price) || (lvl.Side == order.Sell && price < lvl.Price) {
			continue
		}
		if err := m.store.MarkFilled(lvl.Index); err != nil {
			return err
		}
		m.recordFill("", lvl)
	}
	for _, lvl := range m.store.Levels() {
		if !lvl.Filled {
			continue
		}
		exit, reason, ok := strategy.TargetHit(lvl.Side, price, lvl.TakeProfit, lvl.StopLoss)
		if !ok {
			continue
		}
		m.HandlePositionClose(ctx, order.ClosedPosition{
			Symbol:     m.settings.Symbol,
			Side:       lvl.Side,
			EntryPrice: lvl.Price,
			ExitPrice:  exit,
			Size:       m.size,
			Reason:     reason,
		})
	}
	return nil
}

// bounds 当前阶梯边界，供对冲计算触发价。
func (m *GridManager) bounds() hedge.Bounds {
	prices := m.store.Prices()
	return hedge.Bounds{
		Lower:     prices[0],
		Upper:     prices[len(prices)-1],
		Step:      strategy.StepAt(prices, 0),
		Direction: m.settings.Build.Direction,
	}
}

// hedgeTick 突破对冲与按净敞口的预挂对冲。只有网关错误中止本次 tick。
func (m *GridManager) hedgeTick(ctx context.Context, price float64) error {
	if !m.settings.Hedge.Enabled {
		return nil
	}
	b := m.bounds()
	net := m.Exposure().Net
	steps := []func() error{
		func() error { return m.hedge.CheckTrigger(ctx, price, b, math.Abs(net), m.size) },
		func() error { return m.hedge.UpdatePreemptive(ctx, price, b, net) },
	}
	for _, step := range steps {
		err := step()
		if err == nil {
			continue
		}
		if order.IsTransport(err) {
			return err
		}
		m.log.LogError(err, map[string]interface{}{"price": price, "net_exposure": net})
	}
	return nil
}

// HandleCancel 处理交易所推送的撤单，档位回到 IDLE。CLOSED 后返回 false。
func (m *GridManager) HandleCancel(orderID string) bool {
	if m.lc.Is(lifecycle.StateClosed) {
		return false
	}
	i, ok := m.store.ByOrderID(orderID)
	if !ok {
		return false
	}
	if err := m.store.Release(i); err != nil {
		m.log.LogError(err, map[string]interface{}{"order_id": orderID})
		return false
	}
	m.mon.RecordOrdersCanceled(m.settings.Symbol, 1)
	m.log.LogOrder("canceled", orderID, map[string]interface{}{"level": i})
	m.publish()
	return true
}

func (m *GridManager) Pause(reason string) error {
	return m.transition(lifecycle.StatePaused, reason)
}

// Resume 从 PAUSED 或 ERROR 恢复。
func (m *GridManager) Resume(reason string) error {
	if reason == "" {
		reason = "resumed"
	}
	return m.transition(lifecycle.StateActive, reason)
}

// hedgeCloseTimeout 关闭网格时撤销对冲单的超时。
const hedgeCloseTimeout = 5 * time.Second

// Close 终止网格并撤销对冲单，之后所有操作被拒绝。
func (m *GridManager) Close(reason string) error {
	if reason == "" {
		reason = "closed"
	}
	if err := m.transition(lifecycle.StateClosed, reason); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), hedgeCloseTimeout)
	defer cancel()
	m.hedge.Close(ctx, "grid closed")
	return nil
}

// Fail 外部判定的故障（例如行情中断），转入 ERROR。
func (m *GridManager) Fail(msg string) error {
	return m.transition(lifecycle.StateError, msg)
}

func (m *GridManager) fail(err error) {
	m.stats.Errors++
	var te *order.TransportError
	if errors.As(err, &te) {
		m.mon.RecordTransportError(m.settings.Symbol, te.Op)
	}
	m.log.LogError(err, map[string]interface{}{"state": string(m.lc.State())})
	if terr := m.transition(lifecycle.StateError, err.Error()); terr != nil {
		m.log.Warn("error transition rejected", zap.Error(terr))
	}
}

func (m *GridManager) transition(to lifecycle.State, msg string) error {
	t, err := m.lc.Transition(to, msg)
	if err != nil {
		return err
	}
	lifecycle.Dispatch(m.observer, t)
	return nil
}

var stateCodes = map[lifecycle.State]int{
	lifecycle.StateInit:   0,
	lifecycle.StateActive: 1,
	lifecycle.StatePaused: 2,
	lifecycle.StateError:  3,
	lifecycle.StateClosed: 4,
}

func (m *GridManager) internalObserver() lifecycle.Observer {
	return lifecycle.Funcs{
		Transition: func(t lifecycle.Transition) {
			m.log.LogGrid("lifecycle_transition", map[string]interface{}{
				"from": string(t.From), "to": string(t.To), "message": t.Message,
			})
			m.mon.RecordLifecycle(m.settings.Symbol, string(t.To), stateCodes[t.To])
		},
		Critical: func(t lifecycle.Transition) {
			_ = m.alerts.Critical(m.settings.Symbol, "grid entered ERROR", map[string]interface{}{
				"from": string(t.From), "message": t.Message,
			})
		},
		Cleanup: func(t lifecycle.Transition) {
			m.LogSummary()
			_ = m.alerts.Info(m.settings.Symbol, "grid closed", map[string]interface{}{
				"message": t.Message,
			})
		},
	}
}

// Exposure 净敞口 = (多头成交 - 空头成交 + 多头挂单 - 空头挂单) * size。
func (m *GridManager) Exposure() Exposure {
	var e Exposure
	for _, lvl := range m.store.Levels() {
		switch {
		case lvl.Filled && lvl.Side == order.Buy:
			e.LongFilled++
		case lvl.Filled && lvl.Side == order.Sell:
			e.ShortFilled++
		case lvl.Active && lvl.Side == order.Buy:
			e.LongPending++
		case lvl.Active && lvl.Side == order.Sell:
			e.ShortPending++
		}
	}
	e.Net = float64(e.LongFilled-e.ShortFilled+e.LongPending-e.ShortPending) * m.size
	return e
}

func (m *GridManager) Summary() Summary {
	s := Summary{
		Symbol:     m.settings.Symbol,
		Lifecycle:  m.lc.Summary(),
		Levels:     m.store.Counts(),
		Generation: m.store.Generation(),
		Size:       m.size,
		LastPrice:  m.lastPrice,
		DryRun:     m.settings.DryRun,
		Exposure:   m.Exposure(),
		Stats:      m.stats,
		Hedge:      m.hedge.Summary(),
	}
	if m.fills != nil {
		fs := m.fills.Stats()
		s.Fills = FillSummary{
			Total:      fs.TotalFills,
			Assumed:    fs.AssumedFills,
			Recent:     fs.RecentFills,
			RatePerMin: m.fills.RecentFillRate(),
		}
	}
	return s
}

// LogSummary 输出一行网格摘要
func (m *GridManager) LogSummary() {
	s := m.Summary()
	m.log.LogGrid("summary", map[string]interface{}{
		"state":         string(s.Lifecycle.State),
		"generation":    s.Generation,
		"idle":          s.Levels.Idle,
		"active":        s.Levels.Active,
		"filled":        s.Levels.Filled,
		"size":          s.Size,
		"last_price":    s.LastPrice,
		"net_exposure":  s.Exposure.Net,
		"dry_run":       s.DryRun,
		"ticks":         s.Stats.Ticks,
		"entries":       s.Stats.Entries,
		"simulated":     s.Stats.Simulated,
		"fills":         s.Stats.Fills,
		"rebuilds":      s.Stats.Rebuilds,
		"errors":        s.Stats.Errors,
		"last_error":    s.Lifecycle.LastError,
		"sync_passes":   s.Stats.SyncPasses,
		"skipped":       s.Stats.Skipped,
		"ignored_ticks": s.Stats.IgnoredTicks,
		"closed":        s.Stats.PositionsClosed,
		"realized_pnl":  s.Stats.RealizedPnL,
		"fill_rate":     s.Fills.RatePerMin,
		"hedge_active":  s.Hedge.Active,
	})
}

func (m *GridManager) publish() {
	c := m.store.Counts()
	m.mon.UpdateLevels(m.settings.Symbol, c.Idle, c.Active, c.Filled)
	m.mon.UpdateNetExposure(m.settings.Symbol, m.Exposure().Net)
	if m.fills != nil {
		m.mon.UpdateFillRate(m.settings.Symbol, m.fills.RecentFillRate())
	}
}
