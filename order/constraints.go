package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolConstraints 描述交易对的步长与名义限制。
type SymbolConstraints struct {
	TickSize    float64
	StepSize    float64
	MinQty      float64
	MaxQty      float64
	MinNotional float64
}

// Validate 检查订单价格/数量是否符合精度与最小名义。
func (c SymbolConstraints) Validate(price, qty float64) error {
	if c.TickSize > 0 && !isMultiple(price, c.TickSize) {
		return fmt.Errorf("price %.8f not aligned to tickSize %.8f", price, c.TickSize)
	}
	if c.StepSize > 0 && !isMultiple(qty, c.StepSize) {
		return fmt.Errorf("qty %.8f not aligned to stepSize %.8f", qty, c.StepSize)
	}
	if c.MinQty > 0 && qty < c.MinQty {
		return fmt.Errorf("qty %.8f < minQty %.8f", qty, c.MinQty)
	}
	if c.MaxQty > 0 && qty > c.MaxQty {
		return fmt.Errorf("qty %.8f > maxQty %.8f", qty, c.MaxQty)
	}
	if c.MinNotional > 0 && price*qty < c.MinNotional {
		return fmt.Errorf("notional %.8f < minNotional %.8f", price*qty, c.MinNotional)
	}
	return nil
}

// Check 校验网格下单请求，目标价同样需要对齐 tick。
func (c SymbolConstraints) Check(req PlaceRequest) error {
	if err := c.Validate(req.Price, req.Size); err != nil {
		return fmt.Errorf("%s %s @ %.8f: %w", req.Symbol, req.Side, req.Price, err)
	}
	for name, p := range map[string]*float64{"takeProfit": req.TakeProfit, "stopLoss": req.StopLoss} {
		if p != nil && c.TickSize > 0 && !isMultiple(*p, c.TickSize) {
			return fmt.Errorf("%s %.8f not aligned to tickSize %.8f", name, *p, c.TickSize)
		}
	}
	return nil
}

func isMultiple(value, step float64) bool {
	if step <= 0 {
		return true
	}
	// 浮点取模不可靠，按最短十进制表示取模
	return decimal.NewFromFloat(value).Mod(decimal.NewFromFloat(step)).IsZero()
}

// FloorQty 向下取整到 stepSize；未配置 stepSize 时原样返回。
func (c SymbolConstraints) FloorQty(qty float64) float64 {
	if c.StepSize <= 0 || qty <= 0 {
		return qty
	}
	step := decimal.NewFromFloat(c.StepSize)
	f, _ := decimal.NewFromFloat(qty).Div(step).Floor().Mul(step).Float64()
	return f
}
