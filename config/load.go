package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"grid-maker-go/hedge"
	"grid-maker-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env       string                `yaml:"env"`
	Logging   logger.Config         `yaml:"logging"`
	Metrics   MetricsConfig         `yaml:"metrics"`
	Alert     AlertConfig           `yaml:"alert"`
	Sync      SyncConfig            `yaml:"sync"`
	RateLimit RateLimitConfig       `yaml:"rateLimit"`
	Feed      FeedConfig            `yaml:"feed"`
	Symbols   map[string]GridConfig `yaml:"symbols"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

type AlertConfig struct {
	ThrottleSec int  `yaml:"throttleSec"`
	Console     bool `yaml:"console"`
}

// SyncConfig 对账参数，所有交易对共用。
type SyncConfig struct {
	IntervalSec        int     `yaml:"intervalSec"`
	Tolerance          float64 `yaml:"tolerance"`
	AdoptMatching      bool    `yaml:"adoptMatching"`
	Replenish          bool    `yaml:"replenish"`
	BookTTLSec         int     `yaml:"bookTTLSec"`         // 账户级挂单快照过期时间
	CancelRetentionSec int     `yaml:"cancelRetentionSec"` // 明确撤单记录保留时间
	AutoRetrySec       int     `yaml:"autoRetrySec"`       // ERROR 后自动恢复的等待时间，0 关闭
}

// RateLimitConfig 交易所请求限速（下单、撤单、拉取挂单共用）。
type RateLimitConfig struct {
	Disabled     bool    `yaml:"disabled"`
	OrdersPerSec float64 `yaml:"ordersPerSec"`
	Burst        int     `yaml:"burst"`
}

// FeedConfig 模拟行情参数（纸面交易所使用）。
type FeedConfig struct {
	IntervalMs int     `yaml:"intervalMs"`
	StepPct    float64 `yaml:"stepPct"`
	Seed       int64   `yaml:"seed"`
}

// GridConfig 单个交易对的网格配置。
type GridConfig struct {
	LowerPrice float64 `yaml:"lowerPrice"`
	UpperPrice float64 `yaml:"upperPrice"`
	Levels     int     `yaml:"levels"`
	Spacing    string  `yaml:"spacing"`   // arithmetic | geometric
	Direction  string  `yaml:"direction"` // long | short | both

	// 交易所精度/名义限制（来自 exchangeInfo）
	TickSize    float64 `yaml:"tickSize"`
	StepSize    float64 `yaml:"stepSize"`
	MinQty      float64 `yaml:"minQty"`
	MaxQty      float64 `yaml:"maxQty"`
	MinNotional float64 `yaml:"minNotional"`

	BaseOrderSize float64 `yaml:"baseOrderSize"`
	IncludeFees   bool    `yaml:"includeFees"`
	FeeSide       string  `yaml:"feeSide"` // maker | taker
	MakerFeePct   float64 `yaml:"makerFeePct"`
	TakerFeePct   float64 `yaml:"takerFeePct"`

	TPMode        string  `yaml:"tpMode"` // percent | next_grid | none
	TakeProfitPct float64 `yaml:"takeProfitPct"`
	SLMode        string  `yaml:"slMode"` // none | fixed | percent
	StopLossPct   float64 `yaml:"stopLossPct"`
	StopLossPrice float64 `yaml:"stopLossPrice"`

	RebalanceIntervalSec int    `yaml:"rebalanceIntervalSec"`
	DryRun               bool   `yaml:"dryRun"`
	EntryOnTouch         bool   `yaml:"entryOnTouch"`
	ClientIDPrefix       string `yaml:"clientIDPrefix"`
	// ActiveRebuy 仓位平掉后立即在同一档位重新入场
	ActiveRebuy bool `yaml:"activeRebuy"`

	Hedge HedgeConfig `yaml:"hedge"`
}

// HedgeConfig 单向网格的对冲配置。
type HedgeConfig struct {
	Enabled           bool      `yaml:"enabled"`
	Preemptive        bool      `yaml:"preemptive"`
	Mode              string    `yaml:"mode"` // direct | dynamic | reversal
	TriggerOffset     float64   `yaml:"triggerOffset"`
	PartialLevels     []float64 `yaml:"partialLevels"`
	CloseOnReentry    *bool     `yaml:"closeOnReentry"`
	SizeMode          string    `yaml:"sizeMode"` // net_position | fixed
	FixedSizeRatio    float64   `yaml:"fixedSizeRatio"`
	PriceProtectScope float64   `yaml:"priceProtectScope"`
}

// Parse 转成对冲参数并校验范围。
func (h HedgeConfig) Parse() (hedge.Config, error) {
	mode, err := hedge.ParseMode(h.Mode)
	if err != nil {
		return hedge.Config{}, err
	}
	sizeMode, err := hedge.ParseSizeMode(h.SizeMode)
	if err != nil {
		return hedge.Config{}, err
	}
	c := hedge.DefaultConfig()
	c.Enabled = h.Enabled
	c.Preemptive = h.Preemptive
	c.Mode = mode
	c.SizeMode = sizeMode
	if h.TriggerOffset != 0 {
		c.TriggerOffset = h.TriggerOffset
	}
	if len(h.PartialLevels) > 0 {
		c.PartialLevels = append([]float64(nil), h.PartialLevels...)
	}
	if h.CloseOnReentry != nil {
		c.CloseOnReentry = *h.CloseOnReentry
	}
	if h.FixedSizeRatio != 0 {
		c.FixedSizeRatio = h.FixedSizeRatio
	}
	if h.PriceProtectScope != 0 {
		c.PriceProtectScope = h.PriceProtectScope
	}
	return c, c.Validate()
}

const (
	DefaultRebalanceIntervalSec = 300
	MinRebalanceIntervalSec     = 60
	MaxRebalanceIntervalSec     = 3600
	DefaultSyncIntervalSec      = 30
	DefaultClientIDPrefix       = "GRID"
)

// Load reads YAML config from path, fills defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	cfg, err = Parse(raw)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// Parse 解析 YAML 并补默认值，不做校验。
func Parse(raw []byte) (AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// LoadWithEnvOverrides loads config then applies GRID_* env overrides.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("GRID_DRY_RUN"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, ErrInvalid(fmt.Sprintf("GRID_DRY_RUN=%q is not a boolean", v))
		}
		if on {
			for sym, g := range cfg.Symbols {
				g.DryRun = true
				cfg.Symbols[sym] = g
			}
		}
	}
	if v := os.Getenv("GRID_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	cfg.Logging = withLoggingDefaults(cfg.Logging)
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "gridmaker"
	}
	if cfg.Alert.ThrottleSec == 0 {
		cfg.Alert.ThrottleSec = 300
	}
	if cfg.Sync.IntervalSec == 0 {
		cfg.Sync.IntervalSec = DefaultSyncIntervalSec
	}
	if cfg.Sync.BookTTLSec == 0 {
		cfg.Sync.BookTTLSec = 300
	}
	if cfg.Sync.CancelRetentionSec == 0 {
		cfg.Sync.CancelRetentionSec = 3600
	}
	if cfg.RateLimit.OrdersPerSec == 0 {
		cfg.RateLimit.OrdersPerSec = 10
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 20
	}
	if cfg.Feed.IntervalMs == 0 {
		cfg.Feed.IntervalMs = 1000
	}
	if cfg.Feed.StepPct == 0 {
		cfg.Feed.StepPct = 0.002
	}
	for sym, g := range cfg.Symbols {
		if g.Spacing == "" {
			g.Spacing = "arithmetic"
		}
		if g.Direction == "" {
			g.Direction = "both"
		}
		if g.FeeSide == "" {
			g.FeeSide = "maker"
		}
		if g.TPMode == "" {
			g.TPMode = "percent"
		}
		if g.TPMode == "percent" && g.TakeProfitPct == 0 {
			g.TakeProfitPct = 0.003
		}
		if g.SLMode == "" {
			g.SLMode = "none"
		}
		if g.RebalanceIntervalSec == 0 {
			g.RebalanceIntervalSec = DefaultRebalanceIntervalSec
		}
		if g.ClientIDPrefix == "" {
			g.ClientIDPrefix = DefaultClientIDPrefix
		}
		cfg.Symbols[sym] = g
	}
}

func withLoggingDefaults(c logger.Config) logger.Config {
	def := logger.DefaultConfig()
	if c.Level == "" {
		c.Level = def.Level
	}
	if len(c.Outputs) == 0 {
		c.Outputs = def.Outputs
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	if c.MaxSize == 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = def.MaxAge
	}
	return c
}
