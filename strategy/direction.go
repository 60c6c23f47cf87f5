package strategy

import (
	"fmt"
	"strings"

	"grid-maker-go/order"
)

// Direction 网格方向。
type Direction int

const (
	DirectionBoth Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionBoth:
		return "both"
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return DirectionBoth, nil
	case "long":
		return DirectionLong, nil
	case "short":
		return DirectionShort, nil
	default:
		return 0, configErrorf("direction", "unknown grid direction %q", s)
	}
}

// SideFor 档位方向：long 全买，short 全卖，both 以中点划分（price<=mid 为买）。
func (d Direction) SideFor(price, mid float64) order.Side {
	switch d {
	case DirectionLong:
		return order.Buy
	case DirectionShort:
		return order.Sell
	default:
		if price <= mid {
			return order.Buy
		}
		return order.Sell
	}
}

// Allows 该方向是否允许某一侧下单。
func (d Direction) Allows(side order.Side) bool {
	switch d {
	case DirectionLong:
		return side == order.Buy
	case DirectionShort:
		return side == order.Sell
	default:
		return side == order.Buy || side == order.Sell
	}
}
