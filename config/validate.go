package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"

	"grid-maker-go/strategy"
)

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

func invalidf(format string, args ...interface{}) error {
	return ErrInvalid(fmt.Sprintf(format, args...))
}

// Validate 字段级校验：范围、枚举取值、止损方向。
// 跨字段的网格构建条件（tick 过粗等）留给网格构建时报 ConfigError。
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return ErrInvalid("env is required")
	}
	if _, err := zapcore.ParseLevel(cfg.Logging.Level); err != nil {
		return invalidf("logging.level %q: %v", cfg.Logging.Level, err)
	}
	if cfg.Sync.IntervalSec < 0 || cfg.Sync.BookTTLSec < 0 || cfg.Sync.CancelRetentionSec < 0 || cfg.Sync.AutoRetrySec < 0 {
		return ErrInvalid("sync intervals must be >= 0")
	}
	if cfg.Sync.Tolerance < 0 {
		return ErrInvalid("sync.tolerance must be >= 0")
	}
	if cfg.RateLimit.OrdersPerSec < 0 || cfg.RateLimit.Burst < 0 {
		return ErrInvalid("rateLimit values must be >= 0")
	}
	if cfg.Feed.StepPct < 0 || cfg.Feed.StepPct >= 0.5 {
		return invalidf("feed.stepPct %v must be in [0, 0.5)", cfg.Feed.StepPct)
	}
	if len(cfg.Symbols) == 0 {
		return ErrInvalid("symbols config is required")
	}
	for sym, g := range cfg.Symbols {
		if err := ValidateGrid(g); err != nil {
			return fmt.Errorf("symbol %s: %w", sym, err)
		}
	}
	return nil
}

// ValidateGrid 校验单个交易对的网格配置。
func ValidateGrid(g GridConfig) error {
	if g.LowerPrice <= 0 || g.UpperPrice <= 0 {
		return ErrInvalid("lowerPrice/upperPrice must be > 0")
	}
	if g.UpperPrice <= g.LowerPrice {
		return invalidf("upperPrice (%v) must be greater than lowerPrice (%v)", g.UpperPrice, g.LowerPrice)
	}
	if g.Levels < 2 || g.Levels > 100 {
		return invalidf("levels %d must be in [2, 100]", g.Levels)
	}
	if g.TickSize <= 0 {
		return ErrInvalid("tickSize must be > 0")
	}
	if g.UpperPrice-g.LowerPrice < g.TickSize*10 {
		return invalidf("price range %v too small for tickSize %v", g.UpperPrice-g.LowerPrice, g.TickSize)
	}
	if g.StepSize < 0 || g.MinQty < 0 || g.MaxQty < 0 || g.MinNotional < 0 {
		return ErrInvalid("stepSize/minQty/maxQty/minNotional must be >= 0")
	}
	if g.BaseOrderSize <= 0 {
		return ErrInvalid("baseOrderSize must be > 0")
	}
	if g.MakerFeePct < 0 || g.MakerFeePct >= 0.5 || g.TakerFeePct < 0 || g.TakerFeePct >= 0.5 {
		return ErrInvalid("makerFeePct/takerFeePct must be in [0, 0.5)")
	}
	if _, err := strategy.ParseSpacingMode(g.Spacing); err != nil {
		return ErrInvalid(err.Error())
	}
	dir, err := strategy.ParseDirection(g.Direction)
	if err != nil {
		return ErrInvalid(err.Error())
	}
	if _, err := strategy.ParseFeeSide(g.FeeSide); err != nil {
		return ErrInvalid(err.Error())
	}

	tp, err := strategy.ParseTakeProfitMode(g.TPMode)
	if err != nil {
		return ErrInvalid(err.Error())
	}
	if tp == strategy.TakeProfitPercent && (g.TakeProfitPct <= 0 || g.TakeProfitPct > 0.1) {
		return invalidf("takeProfitPct %v must be in (0, 0.1]", g.TakeProfitPct)
	}

	sl, err := strategy.ParseStopLossMode(g.SLMode)
	if err != nil {
		return ErrInvalid(err.Error())
	}
	switch sl {
	case strategy.StopLossPercent:
		if g.StopLossPct <= 0 || g.StopLossPct > 0.5 {
			return invalidf("stopLossPct %v must be in (0, 0.5]", g.StopLossPct)
		}
	case strategy.StopLossFixed:
		if g.StopLossPrice <= 0 {
			return ErrInvalid("stopLossPrice is required when slMode=fixed")
		}
		if dir == strategy.DirectionLong && g.StopLossPrice >= g.LowerPrice {
			return invalidf("long grid stopLossPrice (%v) must be below lowerPrice (%v)", g.StopLossPrice, g.LowerPrice)
		}
		if dir == strategy.DirectionShort && g.StopLossPrice <= g.UpperPrice {
			return invalidf("short grid stopLossPrice (%v) must be above upperPrice (%v)", g.StopLossPrice, g.UpperPrice)
		}
	}

	if g.RebalanceIntervalSec < MinRebalanceIntervalSec || g.RebalanceIntervalSec > MaxRebalanceIntervalSec {
		return invalidf("rebalanceIntervalSec %d must be in [%d, %d]",
			g.RebalanceIntervalSec, MinRebalanceIntervalSec, MaxRebalanceIntervalSec)
	}
	if n := len(strings.TrimSpace(g.ClientIDPrefix)); n < 1 || n > 20 {
		return ErrInvalid("clientIDPrefix must be 1-20 characters")
	}
	if _, err := g.Hedge.Parse(); err != nil {
		return invalidf("hedge: %v", err)
	}
	if g.Hedge.Enabled && dir == strategy.DirectionBoth {
		return ErrInvalid("hedge requires a long or short grid")
	}
	return nil
}
