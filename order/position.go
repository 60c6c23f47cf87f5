package order

// CloseReason 平仓原因。
type CloseReason string

const (
	CloseTakeProfit CloseReason = "take_profit"
	CloseStopLoss   CloseReason = "stop_loss"
	CloseManual     CloseReason = "manual"
)

// ClosedPosition 网格成交后形成的仓位被平掉。Side 为开仓方向。
type ClosedPosition struct {
	OrderID    string
	Symbol     string
	Side       Side
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	Reason     CloseReason
}

// PnL 计价币盈亏：多头 (exit-entry)*size，空头 (entry-exit)*size。
func (p ClosedPosition) PnL() float64 {
	if p.Side == Sell {
		return (p.EntryPrice - p.ExitPrice) * p.Size
	}
	return (p.ExitPrice - p.EntryPrice) * p.Size
}
