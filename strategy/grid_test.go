package strategy

import (
	"errors"
	"math"
	"testing"

	"grid-maker-go/order"
)

func TestBuildLadderProperties(t *testing.T) {
	cases := []LadderParams{
		{Lower: 0.85, Upper: 0.95, Levels: 20, Spacing: SpacingArithmetic, Tick: 0.000001},
		{Lower: 0.85, Upper: 0.95, Levels: 20, Spacing: SpacingGeometric, Tick: 0.000001},
		{Lower: 25000, Upper: 30000, Levels: 10, Spacing: SpacingArithmetic, Tick: 0.1},
		{Lower: 1.5, Upper: 3.7, Levels: 7, Spacing: SpacingGeometric, Tick: 0.001},
		{Lower: 100, Upper: 101, Levels: 2, Spacing: SpacingArithmetic, Tick: 0.01},
	}
	for _, p := range cases {
		prices, err := BuildLadder(p)
		if err != nil {
			t.Fatalf("build %+v: %v", p, err)
		}
		if len(prices) != p.Levels+1 {
			t.Fatalf("expected %d prices, got %d", p.Levels+1, len(prices))
		}
		if prices[0] != RoundToTick(p.Lower, p.Tick) || prices[len(prices)-1] != RoundToTick(p.Upper, p.Tick) {
			t.Fatalf("bounds not preserved: %v..%v for %+v", prices[0], prices[len(prices)-1], p)
		}
		for i, px := range prices {
			if !IsTickMultiple(px, p.Tick) {
				t.Fatalf("level %d price %v not a multiple of %v", i, px, p.Tick)
			}
			if i > 0 && px <= prices[i-1] {
				t.Fatalf("level %d not increasing: %v <= %v", i, px, prices[i-1])
			}
		}
	}
}

func TestBuildLadderArithmeticEqualSteps(t *testing.T) {
	p := LadderParams{Lower: 0.85, Upper: 0.95, Levels: 20, Spacing: SpacingArithmetic, Tick: 0.000001}
	prices, err := BuildLadder(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := (p.Upper - p.Lower) / float64(p.Levels)
	for i := 1; i < len(prices); i++ {
		if got := prices[i] - prices[i-1]; math.Abs(got-want) > p.Tick {
			t.Fatalf("step %d = %v, want %v", i, got, want)
		}
	}
}

func TestBuildLadderGeometricEqualRatios(t *testing.T) {
	p := LadderParams{Lower: 1.5, Upper: 3.7, Levels: 7, Spacing: SpacingGeometric, Tick: 0.001}
	prices, err := BuildLadder(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := math.Pow(p.Upper/p.Lower, 1/float64(p.Levels))
	for i := 1; i < len(prices); i++ {
		// 取整误差最多一个 tick
		tol := p.Tick / prices[i-1] * 2
		if got := prices[i] / prices[i-1]; math.Abs(got-want) > tol {
			t.Fatalf("ratio %d = %v, want %v", i, got, want)
		}
	}
}

func TestBuildLadderScenario(t *testing.T) {
	p := LadderParams{Lower: 0.85, Upper: 0.95, Levels: 20, Spacing: SpacingArithmetic, Tick: 0.000001}
	prices, err := BuildLadder(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(prices) != 21 {
		t.Fatalf("expected 21 prices, got %d", len(prices))
	}
	for i, want := range map[int]float64{0: 0.85, 1: 0.855, 10: 0.9, 20: 0.95} {
		if prices[i] != want {
			t.Fatalf("price[%d] = %v, want %v", i, prices[i], want)
		}
	}
}

func TestMidIsExactDecimal(t *testing.T) {
	p := LadderParams{Lower: 0.85, Upper: 0.95, Levels: 20, Spacing: SpacingArithmetic, Tick: 0.000001}
	if mid := p.Mid(); mid != 0.9 {
		t.Fatalf("mid = %v, want 0.9", mid)
	}
	prices, err := BuildLadder(p)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// 中点档位本身属于买方
	if side := DirectionBoth.SideFor(prices[10], p.Mid()); side != order.Buy {
		t.Fatalf("level 10 (%v) side = %s, want BUY", prices[10], side)
	}
	if side := DirectionBoth.SideFor(prices[11], p.Mid()); side != order.Sell {
		t.Fatalf("level 11 (%v) side = %s, want SELL", prices[11], side)
	}
}

func TestBuildLadderConfigErrors(t *testing.T) {
	cases := map[string]LadderParams{
		"inverted":   {Lower: 2, Upper: 1, Levels: 4, Tick: 0.1},
		"equal":      {Lower: 1, Upper: 1, Levels: 4, Tick: 0.1},
		"one level":  {Lower: 1, Upper: 2, Levels: 1, Tick: 0.1},
		"zero tick":  {Lower: 1, Upper: 2, Levels: 4, Tick: 0},
		"neg tick":   {Lower: 1, Upper: 2, Levels: 4, Tick: -0.1},
		"geo zero":   {Lower: 0, Upper: 2, Levels: 4, Tick: 0.1, Spacing: SpacingGeometric},
		"too coarse": {Lower: 1, Upper: 1.2, Levels: 10, Tick: 0.1},
	}
	for name, p := range cases {
		_, err := BuildLadder(p)
		var ce *ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("%s: expected ConfigError, got %v", name, err)
		}
	}
}

func TestRoundToTickHalfEven(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{0.25, 0.1, 0.2},
		{0.35, 0.1, 0.4},
		{100.30000000000001, 0.01, 100.3},
		{12.4, 1, 12},
		{5.5, 0, 5.5},
	}
	for _, c := range cases {
		if got := RoundToTick(c.price, c.tick); got != c.want {
			t.Fatalf("RoundToTick(%v, %v) = %v, want %v", c.price, c.tick, got, c.want)
		}
	}
}

func TestParseSpacingMode(t *testing.T) {
	m, err := ParseSpacingMode("linear")
	if err != nil || m != SpacingArithmetic {
		t.Fatalf("linear: got %v, %v", m, err)
	}
	m, err = ParseSpacingMode("GEOMETRIC")
	if err != nil || m != SpacingGeometric {
		t.Fatalf("GEOMETRIC: got %v, %v", m, err)
	}
	if _, err := ParseSpacingMode("fibonacci"); err == nil {
		t.Fatalf("expected error for unknown spacing")
	}
}

func TestStepAt(t *testing.T) {
	prices := []float64{10, 11, 13}
	if StepAt(prices, 0) != 1 || StepAt(prices, 1) != 2 || StepAt(prices, 2) != 2 {
		t.Fatalf("unexpected steps %v %v %v", StepAt(prices, 0), StepAt(prices, 1), StepAt(prices, 2))
	}
	if StepAt(prices[:1], 0) != 0 {
		t.Fatalf("single price should have zero step")
	}
}
