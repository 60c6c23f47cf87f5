package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor 网格引擎的 Prometheus 指标，按交易对打标签。
// 所有记录方法对 nil 接收者安全，便于测试时不注入。
type Monitor struct {
	registry *prometheus.Registry

	// 订单
	ordersPlaced    *prometheus.CounterVec
	ordersSimulated *prometheus.CounterVec
	ordersCanceled  *prometheus.CounterVec
	ordersFilled    *prometheus.CounterVec
	entriesSkipped  *prometheus.CounterVec

	// 对账
	syncPasses     *prometheus.CounterVec
	syncMismatches *prometheus.CounterVec
	syncOrphans    *prometheus.GaugeVec
	syncLatency    *prometheus.HistogramVec

	// 网格
	rebuilds        *prometheus.CounterVec
	levels          *prometheus.GaugeVec
	lastPrice       *prometheus.GaugeVec
	netExposure     *prometheus.GaugeVec
	lifecycleState  *prometheus.GaugeVec
	lifecycleChange *prometheus.CounterVec
	fillRate        *prometheus.GaugeVec

	// 仓位与对冲
	positionsClosed *prometheus.CounterVec
	realizedPnL     *prometheus.GaugeVec
	hedgeOrders     *prometheus.CounterVec
	hedgeActive     *prometheus.GaugeVec

	transportErrors *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

func DefaultConfig() Config {
	return Config{
		Namespace: "gridmaker",
		Subsystem: "grid",
	}
}

// New 创建独立 registry 的 Monitor，避免测试间重复注册。
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help,
		}, labels)
	}

	return &Monitor{
		registry: reg,

		ordersPlaced:    counter("orders_placed_total", "提交到交易所的网格订单数", "symbol", "side"),
		ordersSimulated: counter("orders_simulated_total", "模拟盘激活的档位数", "symbol", "side"),
		ordersCanceled:  counter("orders_canceled_total", "对账撤掉的偏离订单数", "symbol"),
		ordersFilled:    counter("orders_filled_total", "成交档位数，assumed 表示由快照消失推断", "symbol", "assumed"),
		entriesSkipped:  counter("entries_skipped_total", "跳过的入场", "symbol", "reason"),

		syncPasses:     counter("sync_passes_total", "对账次数", "symbol"),
		syncMismatches: counter("sync_mismatches_total", "档位与交易所订单不一致次数", "symbol"),
		syncOrphans:    gauge("sync_orphans", "最近一次对账的孤儿订单数", "symbol"),
		syncLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "sync_latency_seconds",
			Help:      "对账耗时分布（秒）",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"symbol"}),

		rebuilds:        counter("rebuilds_total", "网格重建次数", "symbol"),
		levels:          gauge("levels", "各状态档位数量", "symbol", "status"),
		lastPrice:       gauge("last_price", "最近一次行情价格", "symbol"),
		netExposure:     gauge("net_exposure", "净敞口（基础币数量）", "symbol"),
		lifecycleState:  gauge("lifecycle_state", "生命周期状态：0 INIT 1 ACTIVE 2 PAUSED 3 ERROR 4 CLOSED", "symbol"),
		lifecycleChange: counter("lifecycle_transitions_total", "生命周期转换次数", "symbol", "to"),
		fillRate:        gauge("fill_rate_per_minute", "滑动窗口内每分钟成交次数", "symbol"),

		positionsClosed: counter("positions_closed_total", "止盈/止损/手动平仓次数", "symbol", "reason"),
		realizedPnL:     gauge("realized_pnl", "已平仓累计盈亏（计价币）", "symbol"),
		hedgeOrders:     counter("hedge_orders_total", "对冲下单笔数", "symbol", "kind"),
		hedgeActive:     gauge("hedge_active", "对冲是否生效：1 生效 0 未生效", "symbol"),

		transportErrors: counter("transport_errors_total", "交易所调用失败次数", "symbol", "op"),
	}
}

func (m *Monitor) RecordOrderPlaced(symbol, side string) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(symbol, side).Inc()
}

func (m *Monitor) RecordOrderSimulated(symbol, side string) {
	if m == nil {
		return
	}
	m.ordersSimulated.WithLabelValues(symbol, side).Inc()
}

func (m *Monitor) RecordOrdersCanceled(symbol string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ordersCanceled.WithLabelValues(symbol).Add(float64(n))
}

func (m *Monitor) RecordOrdersFilled(symbol string, n int, assumed bool) {
	if m == nil || n <= 0 {
		return
	}
	label := "false"
	if assumed {
		label = "true"
	}
	m.ordersFilled.WithLabelValues(symbol, label).Add(float64(n))
}

func (m *Monitor) RecordEntrySkipped(symbol, reason string) {
	if m == nil {
		return
	}
	m.entriesSkipped.WithLabelValues(symbol, reason).Inc()
}

// RecordSync 记录一次对账结果
func (m *Monitor) RecordSync(symbol string, mismatches, orphans int, seconds float64) {
	if m == nil {
		return
	}
	m.syncPasses.WithLabelValues(symbol).Inc()
	if mismatches > 0 {
		m.syncMismatches.WithLabelValues(symbol).Add(float64(mismatches))
	}
	m.syncOrphans.WithLabelValues(symbol).Set(float64(orphans))
	m.syncLatency.WithLabelValues(symbol).Observe(seconds)
}

func (m *Monitor) RecordRebuild(symbol string) {
	if m == nil {
		return
	}
	m.rebuilds.WithLabelValues(symbol).Inc()
}

// UpdateLevels 更新 idle/active/filled 档位数量
func (m *Monitor) UpdateLevels(symbol string, idle, active, filled int) {
	if m == nil {
		return
	}
	m.levels.WithLabelValues(symbol, "idle").Set(float64(idle))
	m.levels.WithLabelValues(symbol, "active").Set(float64(active))
	m.levels.WithLabelValues(symbol, "filled").Set(float64(filled))
}

func (m *Monitor) UpdateLastPrice(symbol string, price float64) {
	if m == nil {
		return
	}
	m.lastPrice.WithLabelValues(symbol).Set(price)
}

func (m *Monitor) UpdateNetExposure(symbol string, size float64) {
	if m == nil {
		return
	}
	m.netExposure.WithLabelValues(symbol).Set(size)
}

// RecordLifecycle 更新状态值并计数转换
func (m *Monitor) RecordLifecycle(symbol, to string, code int) {
	if m == nil {
		return
	}
	m.lifecycleState.WithLabelValues(symbol).Set(float64(code))
	m.lifecycleChange.WithLabelValues(symbol, to).Inc()
}

func (m *Monitor) UpdateFillRate(symbol string, perMinute float64) {
	if m == nil {
		return
	}
	m.fillRate.WithLabelValues(symbol).Set(perMinute)
}

// RecordPositionClosed 计数平仓并更新累计盈亏
func (m *Monitor) RecordPositionClosed(symbol, reason string, realized float64) {
	if m == nil {
		return
	}
	m.positionsClosed.WithLabelValues(symbol, reason).Inc()
	m.realizedPnL.WithLabelValues(symbol).Set(realized)
}

func (m *Monitor) RecordHedgeOrders(symbol, kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.hedgeOrders.WithLabelValues(symbol, kind).Add(float64(n))
}

func (m *Monitor) UpdateHedgeActive(symbol string, active bool) {
	if m == nil {
		return
	}
	v := 0.0
	if active {
		v = 1
	}
	m.hedgeActive.WithLabelValues(symbol).Set(v)
}

func (m *Monitor) RecordTransportError(symbol, op string) {
	if m == nil {
		return
	}
	m.transportErrors.WithLabelValues(symbol, op).Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
