package grid

import (
	"fmt"

	"grid-maker-go/order"
)

// Status 单个档位的状态：IDLE → ACTIVE → FILLED，撤单时 ACTIVE → IDLE，平仓后 FILLED → IDLE。
type Status int

const (
	StatusIdle Status = iota
	StatusActive
	StatusFilled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusActive:
		return "ACTIVE"
	case StatusFilled:
		return "FILLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Level 网格的一档。OrderID 为空表示没有交易所挂单（模拟盘激活时也为空）。
type Level struct {
	Index      int
	Price      float64
	Side       order.Side
	OrderID    string
	Active     bool
	Filled     bool
	TakeProfit *float64
	StopLoss   *float64
}

func (l Level) Status() Status {
	switch {
	case l.Filled:
		return StatusFilled
	case l.Active:
		return StatusActive
	default:
		return StatusIdle
	}
}

func (l Level) String() string {
	return fmt.Sprintf("#%d %s %.8g %s", l.Index, l.Side, l.Price, l.Status())
}
