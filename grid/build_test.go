package grid

import (
	"errors"
	"math"
	"testing"

	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

func scenarioParams(dir strategy.Direction) BuildParams {
	return BuildParams{
		Ladder: strategy.LadderParams{
			Lower: 0.85, Upper: 0.95, Levels: 20,
			Spacing: strategy.SpacingArithmetic, Tick: 0.000001,
		},
		Direction: dir,
		Targets: strategy.TargetParams{
			Tick:           0.000001,
			TakeProfitMode: strategy.TakeProfitNextGrid,
			StopLossMode:   strategy.StopLossPercent,
			StopLossPct:    0.01,
		},
	}
}

func TestBuildLevelsScenario(t *testing.T) {
	levels, err := BuildLevels(scenarioParams(strategy.DirectionBoth))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(levels) != 21 {
		t.Fatalf("expected 21 levels, got %d", len(levels))
	}
	if levels[0].Price != 0.85 || levels[20].Price != 0.95 {
		t.Fatalf("bounds %v..%v", levels[0].Price, levels[20].Price)
	}

	for i, l := range levels {
		if l.Index != i {
			t.Fatalf("level %d has index %d", i, l.Index)
		}
		want := order.Sell
		if i <= 10 {
			want = order.Buy
		}
		if l.Side != want {
			t.Fatalf("level %d @ %v: side %s, want %s", i, l.Price, l.Side, want)
		}
		if l.Status() != StatusIdle {
			t.Fatalf("level %d not idle", i)
		}
		if l.TakeProfit == nil || l.StopLoss == nil {
			t.Fatalf("level %d missing targets", i)
		}
		if err := strategy.ValidateTargets(l.Price, l.TakeProfit, l.StopLoss, l.Side); err != nil {
			t.Fatalf("level %d: %v", i, err)
		}
	}
	if *levels[0].TakeProfit != levels[1].Price || *levels[20].TakeProfit != levels[19].Price {
		t.Fatalf("next grid take profit: %v %v", *levels[0].TakeProfit, *levels[20].TakeProfit)
	}
}

func TestBuildLevelsDirection(t *testing.T) {
	long, err := BuildLevels(scenarioParams(strategy.DirectionLong))
	if err != nil {
		t.Fatalf("long: %v", err)
	}
	short, err := BuildLevels(scenarioParams(strategy.DirectionShort))
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	for i := range long {
		if long[i].Side != order.Buy || short[i].Side != order.Sell {
			t.Fatalf("level %d: long %s short %s", i, long[i].Side, short[i].Side)
		}
	}
	// 最高档买单的止盈向上外推一个步长
	if tp := *long[20].TakeProfit; math.Abs(tp-0.955) > 1e-9 {
		t.Fatalf("top take profit = %v", tp)
	}
}

func TestBuildLevelsConfigError(t *testing.T) {
	p := scenarioParams(strategy.DirectionBoth)
	p.Ladder.Upper = p.Ladder.Lower
	_, err := BuildLevels(p)
	var ce *strategy.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
