package container

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"grid-maker-go/config"
	"grid-maker-go/infrastructure/alert"
	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/infrastructure/monitor"
	"grid-maker-go/internal/engine"
	"grid-maker-go/order"
	"grid-maker-go/sim"
)

// Options 启动参数，非零值覆盖配置文件。
type Options struct {
	ConfigPath   string
	MetricsAddr  string
	FeedInterval time.Duration
	Logger       *logger.Logger // 测试时注入
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	opts Options
	cfg  config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 纸面交易所
	exchange *sim.Exchange
	ledger   *order.CancelLedger
	book     *order.Book
	limited  order.Gateway

	grids map[string]*gridComponent

	components *Supervisor
}

// New 从配置文件创建容器
func New(opts Options) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewFromConfig(cfg, opts), nil
}

// NewFromConfig 使用已校验的配置创建容器
func NewFromConfig(cfg config.AppConfig, opts Options) *Container {
	return &Container{
		opts:  opts,
		cfg:   cfg,
		grids: make(map[string]*gridComponent),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	c.components = NewSupervisor(c.logger.Named("supervisor"))

	c.buildExchange()
	c.registerMetricsServer()

	if err := c.buildGrids(); err != nil {
		return fmt.Errorf("build grids failed: %w", err)
	}
	c.registerWatcher()

	c.logger.Info("container built", zap.Strings("components", c.components.Names()))
	return nil
}

func (c *Container) buildInfrastructure() error {
	if c.opts.Logger != nil {
		c.logger = c.opts.Logger
	} else {
		l, err := logger.New(c.cfg.Logging)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
		c.logger = l
	}

	monCfg := monitor.DefaultConfig()
	if c.cfg.Metrics.Namespace != "" {
		monCfg.Namespace = c.cfg.Metrics.Namespace
	}
	c.monitor = monitor.New(monCfg)

	channels := []alert.Channel{alert.NewLogChannel("log", c.logger.Named("alert"))}
	if c.cfg.Alert.Console {
		channels = append(channels, alert.NewConsoleChannel("console", os.Stderr))
	}
	c.alerts = alert.NewManager(channels, time.Duration(c.cfg.Alert.ThrottleSec)*time.Second, nil)

	c.logger.Info("infrastructure built", zap.String("env", c.cfg.Env))
	return nil
}

func (c *Container) buildExchange() {
	c.ledger = order.NewCancelLedger(time.Duration(c.cfg.Sync.CancelRetentionSec)*time.Second, nil)
	c.exchange = sim.NewExchange(c.ledger)
	if c.cfg.Sync.BookTTLSec > 0 {
		ttl := time.Duration(c.cfg.Sync.BookTTLSec) * time.Second
		c.book = order.NewBook(c.exchange, ttl, nil)
	}
}

func (c *Container) registerMetricsServer() {
	addr := c.cfg.Metrics.Addr
	if c.opts.MetricsAddr != "" {
		addr = c.opts.MetricsAddr
	}
	if addr == "" {
		return
	}
	c.components.Add(&adminServer{
		addr:    addr,
		handler: c.adminRouter(),
		log:     c.logger.Named("admin"),
	})
}

func (c *Container) buildGrids() error {
	syncInterval := time.Duration(c.cfg.Sync.IntervalSec) * time.Second
	if c.book != nil {
		every := syncInterval
		if every <= 0 {
			every = time.Duration(config.DefaultSyncIntervalSec) * time.Second
		}
		c.components.Add(&bookRefresher{
			book:     c.book,
			interval: every,
			logger:   c.logger.Named("book"),
		})
	}

	feedInterval := time.Duration(c.cfg.Feed.IntervalMs) * time.Millisecond
	if c.opts.FeedInterval > 0 {
		feedInterval = c.opts.FeedInterval
	}
	if feedInterval <= 0 {
		feedInterval = time.Second
	}

	for i, sym := range c.Symbols() {
		g := c.cfg.Symbols[sym]
		settings, err := engine.SettingsFromConfig(sym, g, c.cfg.Sync)
		if err != nil {
			return fmt.Errorf("%s: %w", sym, err)
		}

		comps := engine.Components{
			Gateway: c.gateway(),
			Cancels: c.ledger,
			Logger:  c.logger,
			Monitor: c.monitor,
			Alerts:  c.alerts,
			Fills:   order.NewFillTracker(200, 5*time.Minute, nil),
		}
		if c.book != nil {
			comps.Orders = c.book
		}
		mgr, err := engine.NewGridManager(settings, comps)
		if err != nil {
			return fmt.Errorf("%s: %w", sym, err)
		}

		prices := make(chan float64, 1)
		runner := engine.NewRunner(mgr, prices, engine.RunnerConfig{
			SyncInterval:  syncInterval,
			RetryInterval: time.Duration(c.cfg.Sync.AutoRetrySec) * time.Second,
			BeforeTick:    c.crossFills,
		}, c.logger)

		start := (g.LowerPrice + g.UpperPrice) / 2
		seed := c.cfg.Feed.Seed + int64(i)
		c.grids[sym] = &gridComponent{
			symbol:   sym,
			runner:   runner,
			feed:     sim.NewPriceFeed(start, c.cfg.Feed.StepPct, g.TickSize, seed),
			prices:   prices,
			interval: feedInterval,
			logger:   c.logger,
		}
		c.components.Add(c.grids[sym])
	}
	return nil
}

// crossFills 在纸面交易所按最新价撮合并结算止盈/止损，回报直接交给网格。
func (c *Container) crossFills(ctx context.Context, m *engine.GridManager, price float64) {
	filled := c.exchange.Cross(m.Symbol(), price)
	if len(filled) > 0 && c.book != nil {
		c.book.Invalidate()
	}
	for _, o := range filled {
		m.HandleFill(o.ID)
	}
	for _, pc := range c.exchange.Settle(m.Symbol(), price) {
		m.HandlePositionClose(ctx, pc)
	}
}

// gateway 纸面交易所 -> 限速 -> 作废快照。所有交易对共用同一个令牌桶。
func (c *Container) gateway() order.Gateway {
	if c.limited == nil {
		c.limited = c.exchange
		if rl := c.cfg.RateLimit; !rl.Disabled {
			c.limited = order.NewRateLimitedGateway(c.exchange, rl.OrdersPerSec, rl.Burst)
		}
	}
	if c.book == nil {
		return c.limited
	}
	return &invalidatingGateway{Gateway: c.limited, book: c.book}
}

// invalidatingGateway 下单/撤单后作废共享快照，避免对账读到不含新订单的旧快照。
type invalidatingGateway struct {
	order.Gateway
	book *order.Book
}

func (g *invalidatingGateway) Place(ctx context.Context, req order.PlaceRequest) (string, error) {
	id, err := g.Gateway.Place(ctx, req)
	g.book.Invalidate()
	return id, err
}

func (g *invalidatingGateway) Cancel(ctx context.Context, symbol, orderID string) error {
	err := g.Gateway.Cancel(ctx, symbol, orderID)
	g.book.Invalidate()
	return err
}

func (c *Container) registerWatcher() {
	if c.opts.ConfigPath == "" {
		return
	}
	w := config.NewWatcher(c.opts.ConfigPath, config.DefaultCooldown, c.logger.Named("config"))
	c.components.Add(&watcherComponent{
		watcher:  w,
		onUpdate: c.applyConfig,
		logger:   c.logger,
	})
}

// applyConfig 把热更新的网格参数交给对应 Runner；交易对增删需要重启。
func (c *Container) applyConfig(cfg config.AppConfig) {
	for sym, g := range cfg.Symbols {
		comp, ok := c.grids[sym]
		if !ok {
			c.logger.Warn("new symbol in config ignored until restart", zap.String("symbol", sym))
			continue
		}
		settings, err := engine.SettingsFromConfig(sym, g, cfg.Sync)
		if err != nil {
			c.logger.LogError(err, map[string]interface{}{"symbol": sym, "action": "reconfigure"})
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var rerr error
		err = comp.runner.Do(ctx, func(m *engine.GridManager) { rerr = m.Reconfigure(settings) })
		cancel()
		if err == nil {
			err = rerr
		}
		if err != nil {
			c.logger.LogError(err, map[string]interface{}{"symbol": sym, "action": "reconfigure"})
		}
	}
	for sym := range c.grids {
		if _, ok := cfg.Symbols[sym]; !ok {
			c.logger.Warn("symbol removed from config, still running until restart", zap.String("symbol", sym))
		}
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.components.Start(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started", zap.Int("grids", len(c.grids)))
	return nil
}

// Stop 逆序停止组件：网格先转入 CLOSED 并输出摘要。交易所上的挂单保留。
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.components.Stop()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	c.logger.Info("container stopped", zap.Int("open_orders", c.exchange.OpenCount()))
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.components.Health()
}

// Symbols 已配置交易对（排序后）
func (c *Container) Symbols() []string {
	out := make([]string, 0, len(c.cfg.Symbols))
	for sym := range c.cfg.Symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Do 在指定交易对的事件循环内执行 fn。
func (c *Container) Do(ctx context.Context, symbol string, fn func(*engine.GridManager)) error {
	g, ok := c.grids[symbol]
	if !ok {
		return fmt.Errorf("unknown symbol %s", symbol)
	}
	return g.runner.Do(ctx, fn)
}

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Monitor() *monitor.Monitor { return c.monitor }

func (c *Container) Exchange() *sim.Exchange { return c.exchange }

func (c *Container) Config() config.AppConfig { return c.cfg }
