package hedge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/infrastructure/monitor"
	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

// ErrLegRejected 对冲单不满足交易对精度/名义限制。
var ErrLegRejected = errors.New("hedge leg rejected")

// Kind 当前生效的对冲来源。
type Kind string

const (
	KindNone       Kind = ""
	KindBreakout   Kind = "breakout"
	KindPreemptive Kind = "preemptive"
)

// Venue 对冲需要的交易所能力。
type Venue interface {
	order.Placer
	order.Canceler
}

// Options 与网格共享的交易对参数
type Options struct {
	Constraints    order.SymbolConstraints
	DryRun         bool
	ClientIDPrefix string
	Logger         *logger.Logger
	Monitor        *monitor.Monitor
}

// Stats 对冲统计
type Stats struct {
	Triggers      int64
	Preemptive    int64
	Closes        int64
	OrdersPlaced  int64
	Simulated     int64
	ScopeDeferred int64
	CancelErrors  int64
}

// Summary 对冲状态快照
type Summary struct {
	Enabled bool
	Active  bool
	Kind    Kind
	Legs    []Leg
	Orders  int
	Stats   Stats
}

// Manager 单个交易对的对冲单。与网格管理器由同一个 Runner 驱动，不加锁。
type Manager struct {
	symbol string
	cfg    Config
	opts   Options
	venue  Venue
	log    *logger.Logger
	mon    *monitor.Monitor

	seq    int64
	active bool
	kind   Kind
	legs   []Leg
	orders []string
	owned  map[string]bool
	warned map[string]bool

	stats Stats
}

func NewManager(symbol string, cfg Config, venue Venue, opts Options) *Manager {
	m := &Manager{
		symbol: symbol,
		venue:  venue,
		owned:  make(map[string]bool),
		warned: make(map[string]bool),
	}
	m.Reconfigure(cfg, opts)
	return m
}

// Reconfigure 替换参数，不影响已生效的对冲单。
func (m *Manager) Reconfigure(cfg Config, opts Options) {
	if opts.ClientIDPrefix == "" {
		opts.ClientIDPrefix = "HEDGE"
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	m.cfg = cfg
	m.opts = opts
	m.log = opts.Logger.Named("hedge")
	m.mon = opts.Monitor
}

func (m *Manager) Config() Config { return m.cfg }

func (m *Manager) Active() bool { return m.active }

// Owns 订单是否由对冲下出（包括已撤销的），供对账时排除。
func (m *Manager) Owns(orderID string) bool { return m.owned[orderID] }

func (m *Manager) Summary() Summary {
	legs := make([]Leg, len(m.legs))
	copy(legs, m.legs)
	return Summary{
		Enabled: m.cfg.Enabled,
		Active:  m.active,
		Kind:    m.kind,
		Legs:    legs,
		Orders:  len(m.orders),
		Stats:   m.stats,
	}
}

// CheckTrigger 价格越过触发线时挂突破对冲；已生效且价格回到区间内时按配置撤销。
func (m *Manager) CheckTrigger(ctx context.Context, price float64, b Bounds, exposure, unit float64) error {
	if !m.cfg.Enabled {
		return nil
	}
	br := m.cfg.Detect(price, b)
	if br == BreakoutNone {
		if m.active && m.cfg.CloseOnReentry && price >= b.Lower && price <= b.Upper {
			m.Close(ctx, "reentry")
		}
		return nil
	}
	if m.active {
		return nil
	}
	legs := m.cfg.BreakoutLegs(b, br, exposure, unit)
	if len(legs) == 0 {
		return nil
	}
	lower, upper := m.cfg.Triggers(b)
	m.log.LogRisk("hedge_triggered", map[string]interface{}{
		"breakout":      br.String(),
		"price":         price,
		"lower_trigger": lower,
		"upper_trigger": upper,
		"mode":          m.cfg.Mode.String(),
		"legs":          len(legs),
	})
	m.stats.Triggers++
	return m.open(ctx, KindBreakout, legs)
}

// UpdatePreemptive 按净敞口维护一笔网格外的反向单。数量或价格变化时撤旧挂新。
func (m *Manager) UpdatePreemptive(ctx context.Context, price float64, b Bounds, net float64) error {
	if !m.cfg.Enabled || !m.cfg.Preemptive {
		return nil
	}
	if m.active && m.kind == KindBreakout {
		return nil
	}
	leg, ok := m.cfg.PreemptiveLeg(b, net)
	if !ok {
		if m.active {
			m.Close(ctx, "flat")
		}
		return nil
	}
	leg = m.normalize(leg)
	if m.active && len(m.legs) == 1 && m.legs[0] == leg {
		return nil
	}
	if !m.cfg.InScope(leg, price) {
		key := fmt.Sprintf("%.8f", leg.Price)
		if !m.warned[key] {
			m.warned[key] = true
			m.stats.ScopeDeferred++
			m.log.Warn("hedge price out of protect scope, deferred",
				zap.String("side", string(leg.Side)),
				zap.Float64("hedge_price", leg.Price),
				zap.Float64("live_price", price),
				zap.Float64("scope", m.cfg.PriceProtectScope))
		}
		return nil
	}
	if m.active {
		m.Close(ctx, "resize")
	}
	m.stats.Preemptive++
	return m.open(ctx, KindPreemptive, []Leg{leg})
}

// Close 撤销全部对冲单。撤单失败（通常是已成交）只记录，不阻塞。
func (m *Manager) Close(ctx context.Context, reason string) {
	if !m.active {
		return
	}
	if !m.opts.DryRun {
		for _, id := range m.orders {
			if err := m.venue.Cancel(ctx, m.symbol, id); err != nil {
				m.stats.CancelErrors++
				m.log.Warn("hedge cancel failed", zap.String("order_id", id), zap.Error(err))
			}
		}
	}
	m.log.LogRisk("hedge_closed", map[string]interface{}{
		"reason": reason, "kind": string(m.kind), "orders": len(m.orders), "dry_run": m.opts.DryRun,
	})
	m.stats.Closes++
	m.active = false
	m.kind = KindNone
	m.legs = nil
	m.orders = nil
	m.mon.UpdateHedgeActive(m.symbol, false)
}

func (m *Manager) normalize(l Leg) Leg {
	l.Price = strategy.RoundToTick(l.Price, m.opts.Constraints.TickSize)
	l.Size = m.opts.Constraints.FloorQty(l.Size)
	return l
}

// open 下出全部对冲单。部分失败时已下的单仍然生效，返回 TransportError。
func (m *Manager) open(ctx context.Context, kind Kind, legs []Leg) error {
	valid := make([]Leg, 0, len(legs))
	for _, l := range legs {
		l = m.normalize(l)
		if l.Price <= 0 || l.Size <= 0 {
			return fmt.Errorf("%w: %s %v @ %v", ErrLegRejected, l.Side, l.Size, l.Price)
		}
		if err := m.opts.Constraints.Validate(l.Price, l.Size); err != nil {
			return fmt.Errorf("%w: %v", ErrLegRejected, err)
		}
		valid = append(valid, l)
	}

	m.active = true
	m.kind = kind
	m.legs = valid
	defer m.mon.UpdateHedgeActive(m.symbol, true)

	if m.opts.DryRun {
		m.stats.Simulated += int64(len(valid))
		m.log.LogRisk("hedge_simulated", map[string]interface{}{"kind": string(kind), "legs": len(valid)})
		return nil
	}
	for _, l := range valid {
		m.seq++
		req := order.PlaceRequest{
			Symbol:   m.symbol,
			Side:     l.Side,
			Price:    l.Price,
			Size:     l.Size,
			ClientID: fmt.Sprintf("%s-%s-%d", m.opts.ClientIDPrefix, m.symbol, m.seq),
		}
		id, err := m.venue.Place(ctx, req)
		if err != nil {
			return order.WrapTransport("hedge_place", m.symbol, err)
		}
		m.orders = append(m.orders, id)
		m.owned[id] = true
		m.stats.OrdersPlaced++
		m.mon.RecordHedgeOrders(m.symbol, string(kind), 1)
		m.log.LogOrder("hedge_placed", id, map[string]interface{}{
			"kind": string(kind), "side": string(l.Side), "price": l.Price, "size": l.Size,
			"client_id": req.ClientID,
		})
	}
	return nil
}
