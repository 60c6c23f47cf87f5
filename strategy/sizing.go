package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"grid-maker-go/order"
)

// FeeSide 手续费按挂单（maker）还是吃单（taker）费率计。
type FeeSide int

const (
	FeeMaker FeeSide = iota
	FeeTaker
)

func (f FeeSide) String() string {
	if f == FeeTaker {
		return "taker"
	}
	return "maker"
}

func ParseFeeSide(s string) (FeeSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "maker":
		return FeeMaker, nil
	case "taker":
		return FeeTaker, nil
	default:
		return 0, configErrorf("feeSide", "unknown fee side %q", s)
	}
}

// SizingParams 下单量参数。
type SizingParams struct {
	BaseSize    float64
	IncludeFees bool
	FeeSide     FeeSide
	MakerFeePct float64
	TakerFeePct float64
}

// FeePct 当前生效的单边费率。
func (p SizingParams) FeePct() float64 {
	if p.FeeSide == FeeTaker {
		return p.TakerFeePct
	}
	return p.MakerFeePct
}

// EffectiveSize 扣除开平两次手续费后的下单量：base*(1-2*fee)，不小于 0，保留 8 位小数。
func (p SizingParams) EffectiveSize() float64 {
	if p.BaseSize <= 0 {
		return 0
	}
	size := decimal.NewFromFloat(p.BaseSize)
	if p.IncludeFees {
		fee := decimal.NewFromFloat(p.FeePct()).Mul(decimal.NewFromInt(2))
		size = size.Mul(decimal.NewFromInt(1).Sub(fee))
	}
	if size.IsNegative() {
		return 0
	}
	f, _ := size.Round(SizePrecision).Float64()
	return f
}

// Order 转换为透传给网关的 Sizing 描述。
func (p SizingParams) Order() order.Sizing {
	return order.Sizing{
		BaseSize:    p.BaseSize,
		IncludeFees: p.IncludeFees,
		FeeSide:     p.FeeSide.String(),
		FeePct:      p.FeePct(),
	}
}

func (p SizingParams) String() string {
	return fmt.Sprintf("base=%v fees=%v(%s %.6f)", p.BaseSize, p.IncludeFees, p.FeeSide, p.FeePct())
}
