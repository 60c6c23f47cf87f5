package engine

import (
	"fmt"
	"time"

	"grid-maker-go/config"
	"grid-maker-go/grid"
	"grid-maker-go/hedge"
	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

// Settings 单个网格的已解析参数。
type Settings struct {
	Symbol            string
	Build             grid.BuildParams
	Sizing            strategy.SizingParams
	Constraints       order.SymbolConstraints
	Sync              grid.SyncConfig
	RebalanceInterval time.Duration // <=0 关闭定时重建
	DryRun            bool
	EntryOnTouch      bool
	ClientIDPrefix    string
	// ActiveRebuy 仓位平掉后立即在原档位重新入场，否则等待下一次触价或重建
	ActiveRebuy bool
	Hedge       hedge.Config
}

// SettingsFromConfig 把已校验的 YAML 配置转成领域参数。
func SettingsFromConfig(symbol string, g config.GridConfig, sc config.SyncConfig) (Settings, error) {
	spacing, err := strategy.ParseSpacingMode(g.Spacing)
	if err != nil {
		return Settings{}, err
	}
	dir, err := strategy.ParseDirection(g.Direction)
	if err != nil {
		return Settings{}, err
	}
	feeSide, err := strategy.ParseFeeSide(g.FeeSide)
	if err != nil {
		return Settings{}, err
	}
	tp, err := strategy.ParseTakeProfitMode(g.TPMode)
	if err != nil {
		return Settings{}, err
	}
	sl, err := strategy.ParseStopLossMode(g.SLMode)
	if err != nil {
		return Settings{}, err
	}
	hc, err := g.Hedge.Parse()
	if err != nil {
		return Settings{}, err
	}
	if symbol == "" {
		return Settings{}, fmt.Errorf("symbol is required")
	}

	return Settings{
		Symbol: symbol,
		Build: grid.BuildParams{
			Ladder: strategy.LadderParams{
				Lower:   g.LowerPrice,
				Upper:   g.UpperPrice,
				Levels:  g.Levels,
				Spacing: spacing,
				Tick:    g.TickSize,
			},
			Direction: dir,
			Targets: strategy.TargetParams{
				Tick:           g.TickSize,
				TakeProfitMode: tp,
				TakeProfitPct:  g.TakeProfitPct,
				StopLossMode:   sl,
				StopLossPct:    g.StopLossPct,
				StopLossPrice:  g.StopLossPrice,
			},
		},
		Sizing: strategy.SizingParams{
			BaseSize:    g.BaseOrderSize,
			IncludeFees: g.IncludeFees,
			FeeSide:     feeSide,
			MakerFeePct: g.MakerFeePct,
			TakerFeePct: g.TakerFeePct,
		},
		Constraints: order.SymbolConstraints{
			TickSize:    g.TickSize,
			StepSize:    g.StepSize,
			MinQty:      g.MinQty,
			MaxQty:      g.MaxQty,
			MinNotional: g.MinNotional,
		},
		Sync: grid.SyncConfig{
			Tolerance:     sc.Tolerance,
			DryRun:        g.DryRun,
			AdoptMatching: sc.AdoptMatching,
			Replenish:     sc.Replenish,
		},
		RebalanceInterval: time.Duration(g.RebalanceIntervalSec) * time.Second,
		DryRun:            g.DryRun,
		EntryOnTouch:      g.EntryOnTouch,
		ClientIDPrefix:    g.ClientIDPrefix,
		ActiveRebuy:       g.ActiveRebuy,
		Hedge:             hc,
	}, nil
}
