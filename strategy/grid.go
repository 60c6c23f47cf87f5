package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// SpacingMode 网格间距模式。
type SpacingMode int

const (
	// SpacingArithmetic 等差：相邻价差相同
	SpacingArithmetic SpacingMode = iota
	// SpacingGeometric 等比：相邻价格比例相同
	SpacingGeometric
)

func (m SpacingMode) String() string {
	switch m {
	case SpacingArithmetic:
		return "arithmetic"
	case SpacingGeometric:
		return "geometric"
	default:
		return fmt.Sprintf("SpacingMode(%d)", int(m))
	}
}

// ParseSpacingMode 解析配置中的间距模式（兼容 linear/logarithmic 写法）。
func ParseSpacingMode(s string) (SpacingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arithmetic", "linear":
		return SpacingArithmetic, nil
	case "geometric", "logarithmic":
		return SpacingGeometric, nil
	default:
		return 0, configErrorf("spacing", "unknown spacing mode %q", s)
	}
}

// LadderParams 价格阶梯参数。
type LadderParams struct {
	Lower   float64
	Upper   float64
	Levels  int // 区间段数，生成 Levels+1 个价格
	Spacing SpacingMode
	Tick    float64
}

// Validate 检查跨字段前置条件。
func (p LadderParams) Validate() error {
	if p.Lower >= p.Upper {
		return configErrorf("bounds", "upper price (%v) must be greater than lower price (%v)", p.Upper, p.Lower)
	}
	if p.Levels < 2 {
		return configErrorf("levels", "level count %d must be at least 2", p.Levels)
	}
	if p.Tick <= 0 {
		return configErrorf("tickSize", "tick size %v must be > 0", p.Tick)
	}
	if p.Spacing == SpacingGeometric && p.Lower <= 0 {
		return configErrorf("bounds", "geometric spacing needs a positive lower price, got %v", p.Lower)
	}
	return nil
}

// Mid 阶梯中点，BOTH 方向以此划分买卖。按十进制计算，0.85/0.95 的中点恰为 0.9。
func (p LadderParams) Mid() float64 {
	mid := decimal.NewFromFloat(p.Lower).Add(decimal.NewFromFloat(p.Upper)).Div(decimal.NewFromInt(2))
	return mid.Round(PricePrecision).InexactFloat64()
}

// BuildLadder 生成 [Lower, Upper] 区间内 Levels+1 个严格递增、按 tick 取整的价格。
func BuildLadder(p LadderParams) ([]float64, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := p.Levels
	raw := make([]float64, n+1)
	switch p.Spacing {
	case SpacingArithmetic:
		step := (p.Upper - p.Lower) / float64(n)
		for i := 0; i < n; i++ {
			raw[i] = p.Lower + float64(i)*step
		}
	case SpacingGeometric:
		ratio := math.Pow(p.Upper/p.Lower, 1/float64(n))
		for i := 0; i < n; i++ {
			raw[i] = p.Lower * math.Pow(ratio, float64(i))
		}
	default:
		return nil, configErrorf("spacing", "unknown spacing mode %v", p.Spacing)
	}
	// 末端直接取上界，避免累计误差
	raw[n] = p.Upper

	prices := make([]float64, n+1)
	for i, v := range raw {
		prices[i] = RoundToTick(v, p.Tick)
		if i > 0 && prices[i] <= prices[i-1] {
			return nil, configErrorf("tickSize", "tick size %v too coarse for %d levels: level %d collapses to %v", p.Tick, n, i, prices[i])
		}
	}
	return prices, nil
}

// StepAt 返回 i 与相邻档位的价差；i 越界时按边缘价差处理。
func StepAt(prices []float64, i int) float64 {
	if len(prices) < 2 {
		return 0
	}
	if i <= 0 {
		return prices[1] - prices[0]
	}
	if i >= len(prices)-1 {
		return prices[len(prices)-1] - prices[len(prices)-2]
	}
	return prices[i+1] - prices[i]
}
