package strategy

import (
	"testing"

	"grid-maker-go/order"
)

func mustTarget(t *testing.T, v *float64, want float64) {
	t.Helper()
	if v == nil {
		t.Fatalf("expected target %v, got nil", want)
	}
	if *v != want {
		t.Fatalf("target = %v, want %v", *v, want)
	}
}

func TestTakeProfitPercent(t *testing.T) {
	p := TargetParams{Tick: 0.01, TakeProfitMode: TakeProfitPercent, TakeProfitPct: 0.003}
	mustTarget(t, p.TakeProfit(100, 0, order.Buy, nil), 100.3)

	tp := p.TakeProfit(100, 0, order.Sell, nil)
	mustTarget(t, tp, 99.7)

	// 纯函数：重复调用结果一致
	mustTarget(t, p.TakeProfit(100, 0, order.Sell, nil), *tp)
}

func TestTakeProfitNextGrid(t *testing.T) {
	ladder := []float64{10, 11, 12.5}
	p := TargetParams{Tick: 0.1, TakeProfitMode: TakeProfitNextGrid}

	mustTarget(t, p.TakeProfit(10, 0, order.Buy, ladder), 11)
	mustTarget(t, p.TakeProfit(12.5, 2, order.Sell, ladder), 11)
	// 边界外推一个相邻步长
	mustTarget(t, p.TakeProfit(12.5, 2, order.Buy, ladder), 14)
	mustTarget(t, p.TakeProfit(10, 0, order.Sell, ladder), 9)
	if tp := p.TakeProfit(10, 0, order.Buy, ladder[:1]); tp != nil {
		t.Fatalf("single-level ladder should have no take profit, got %v", *tp)
	}
}

func TestTakeProfitNone(t *testing.T) {
	p := TargetParams{Tick: 0.1}
	if tp := p.TakeProfit(10, 0, order.Buy, []float64{10, 11}); tp != nil {
		t.Fatalf("expected nil take profit, got %v", *tp)
	}
}

func TestStopLoss(t *testing.T) {
	p := TargetParams{Tick: 0.01, StopLossMode: StopLossPercent, StopLossPct: 0.02}
	mustTarget(t, p.StopLoss(100, order.Buy), 98)
	mustTarget(t, p.StopLoss(100, order.Sell), 102)

	p = TargetParams{Tick: 0.5, StopLossMode: StopLossFixed, StopLossPrice: 90.3}
	mustTarget(t, p.StopLoss(100, order.Buy), 90.5)

	p.StopLossPrice = 0
	if sl := p.StopLoss(100, order.Buy); sl != nil {
		t.Fatalf("zero fixed price should disable stop loss")
	}
	p = TargetParams{Tick: 0.01, StopLossMode: StopLossNone, StopLossPct: 0.02}
	if sl := p.StopLoss(100, order.Buy); sl != nil {
		t.Fatalf("mode none should disable stop loss")
	}
}

func TestValidateTargets(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		name   string
		tp, sl *float64
		side   order.Side
		ok     bool
	}{
		{"buy both", f(101), f(99), order.Buy, true},
		{"buy none", nil, nil, order.Buy, true},
		{"buy tp below", f(99), nil, order.Buy, false},
		{"buy sl at entry", nil, f(100), order.Buy, false},
		{"sell both", f(99), f(101), order.Sell, true},
		{"sell tp above", f(101), nil, order.Sell, false},
		{"sell sl below", nil, f(99), order.Sell, false},
		{"unknown side", nil, nil, order.Side("HOLD"), false},
	}
	for _, c := range cases {
		err := ValidateTargets(100, c.tp, c.sl, c.side)
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestParseTargetModes(t *testing.T) {
	tp, err := ParseTakeProfitMode("next_grid")
	if err != nil || tp != TakeProfitNextGrid {
		t.Fatalf("next_grid: %v %v", tp, err)
	}
	if _, err := ParseTakeProfitMode("trailing"); err == nil {
		t.Fatalf("expected error for trailing")
	}
	sl, err := ParseStopLossMode("FIXED")
	if err != nil || sl != StopLossFixed {
		t.Fatalf("FIXED: %v %v", sl, err)
	}
	if _, err := ParseStopLossMode("atr"); err == nil {
		t.Fatalf("expected error for atr")
	}
}

func TestTargetHit(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	cases := []struct {
		name   string
		side   order.Side
		price  float64
		tp, sl *float64
		exit   float64
		reason order.CloseReason
		hit    bool
	}{
		{"long tp", order.Buy, 1.02, f(1.01), f(0.98), 1.01, order.CloseTakeProfit, true},
		{"long sl", order.Buy, 0.97, f(1.01), f(0.98), 0.98, order.CloseStopLoss, true},
		{"long inside", order.Buy, 1.0, f(1.01), f(0.98), 0, "", false},
		{"long no targets", order.Buy, 5, nil, nil, 0, "", false},
		{"short tp", order.Sell, 0.99, f(0.995), f(1.02), 0.995, order.CloseTakeProfit, true},
		{"short sl", order.Sell, 1.02, f(0.995), f(1.02), 1.02, order.CloseStopLoss, true},
	}
	for _, c := range cases {
		exit, reason, hit := TargetHit(c.side, c.price, c.tp, c.sl)
		if hit != c.hit || exit != c.exit || reason != c.reason {
			t.Fatalf("%s: got (%v, %q, %v), want (%v, %q, %v)", c.name, exit, reason, hit, c.exit, c.reason, c.hit)
		}
	}
}
