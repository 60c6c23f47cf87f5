package strategy

import (
	"fmt"
	"strings"

	"grid-maker-go/order"
)

// TakeProfitMode 止盈模式。
type TakeProfitMode int

const (
	TakeProfitNone TakeProfitMode = iota
	TakeProfitPercent
	TakeProfitNextGrid
)

func (m TakeProfitMode) String() string {
	switch m {
	case TakeProfitNone:
		return "none"
	case TakeProfitPercent:
		return "percent"
	case TakeProfitNextGrid:
		return "next_grid"
	default:
		return fmt.Sprintf("TakeProfitMode(%d)", int(m))
	}
}

func ParseTakeProfitMode(s string) (TakeProfitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TakeProfitNone, nil
	case "percent":
		return TakeProfitPercent, nil
	case "next_grid":
		return TakeProfitNextGrid, nil
	default:
		return 0, configErrorf("tpMode", "unknown take-profit mode %q", s)
	}
}

// StopLossMode 止损模式。
type StopLossMode int

const (
	StopLossNone StopLossMode = iota
	StopLossFixed
	StopLossPercent
)

func (m StopLossMode) String() string {
	switch m {
	case StopLossNone:
		return "none"
	case StopLossFixed:
		return "fixed"
	case StopLossPercent:
		return "percent"
	default:
		return fmt.Sprintf("StopLossMode(%d)", int(m))
	}
}

func ParseStopLossMode(s string) (StopLossMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return StopLossNone, nil
	case "fixed":
		return StopLossFixed, nil
	case "percent":
		return StopLossPercent, nil
	default:
		return 0, configErrorf("slMode", "unknown stop-loss mode %q", s)
	}
}

// TargetParams 止盈止损计算参数。StopLossPrice<=0 视为未配置。
type TargetParams struct {
	Tick           float64
	TakeProfitMode TakeProfitMode
	TakeProfitPct  float64
	StopLossMode   StopLossMode
	StopLossPct    float64
	StopLossPrice  float64
}

// TakeProfit 计算止盈价；nil 表示不设止盈。纯函数。
func (p TargetParams) TakeProfit(entry float64, index int, side order.Side, ladder []float64) *float64 {
	var tp float64
	switch p.TakeProfitMode {
	case TakeProfitPercent:
		if side == order.Buy {
			tp = entry * (1 + p.TakeProfitPct)
		} else {
			tp = entry * (1 - p.TakeProfitPct)
		}
	case TakeProfitNextGrid:
		if len(ladder) < 2 {
			return nil
		}
		last := len(ladder) - 1
		if side == order.Buy {
			if index >= 0 && index < last {
				tp = ladder[index+1]
			} else {
				tp = entry + StepAt(ladder, last)
			}
		} else {
			if index > 0 && index <= last {
				tp = ladder[index-1]
			} else {
				tp = entry - StepAt(ladder, 0)
			}
		}
	default:
		return nil
	}
	return roundedPtr(tp, p.Tick)
}

// StopLoss 计算止损价；nil 表示不设止损。纯函数。
func (p TargetParams) StopLoss(entry float64, side order.Side) *float64 {
	var sl float64
	switch p.StopLossMode {
	case StopLossFixed:
		if p.StopLossPrice <= 0 {
			return nil
		}
		sl = p.StopLossPrice
	case StopLossPercent:
		if side == order.Buy {
			sl = entry * (1 - p.StopLossPct)
		} else {
			sl = entry * (1 + p.StopLossPct)
		}
	default:
		return nil
	}
	return roundedPtr(sl, p.Tick)
}

func roundedPtr(v, tick float64) *float64 {
	r := RoundToTick(v, tick)
	return &r
}

// ValidateTargets 检查目标价方向：BUY 要求 tp > entry > sl，SELL 要求 sl > entry > tp。
func ValidateTargets(entry float64, tp, sl *float64, side order.Side) error {
	switch side {
	case order.Buy:
		if tp != nil && *tp <= entry {
			return fmt.Errorf("BUY take profit %.8f must be above entry %.8f", *tp, entry)
		}
		if sl != nil && *sl >= entry {
			return fmt.Errorf("BUY stop loss %.8f must be below entry %.8f", *sl, entry)
		}
	case order.Sell:
		if tp != nil && *tp >= entry {
			return fmt.Errorf("SELL take profit %.8f must be below entry %.8f", *tp, entry)
		}
		if sl != nil && *sl <= entry {
			return fmt.Errorf("SELL stop loss %.8f must be above entry %.8f", *sl, entry)
		}
	default:
		return fmt.Errorf("unknown side %q", side)
	}
	return nil
}

// TargetHit 判断价格是否触发止盈/止损，返回平仓价与原因。止盈优先于止损。
// 多头 price>=tp 止盈、price<=sl 止损；空头相反。
func TargetHit(side order.Side, price float64, tp, sl *float64) (float64, order.CloseReason, bool) {
	switch side {
	case order.Buy:
		if tp != nil && price >= *tp {
			return *tp, order.CloseTakeProfit, true
		}
		if sl != nil && price <= *sl {
			return *sl, order.CloseStopLoss, true
		}
	case order.Sell:
		if tp != nil && price <= *tp {
			return *tp, order.CloseTakeProfit, true
		}
		if sl != nil && price >= *sl {
			return *sl, order.CloseStopLoss, true
		}
	}
	return 0, "", false
}
