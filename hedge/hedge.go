package hedge

import (
	"fmt"
	"math"
	"strings"

	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

// Mode 突破对冲的下单方式。
type Mode int

const (
	// ModeDirect 单笔全量
	ModeDirect Mode = iota
	// ModeDynamic 按 PartialLevels 分批挂在触发价之外
	ModeDynamic
	// ModeReversal 双倍数量，平掉网格敞口后反手
	ModeReversal
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeDynamic:
		return "dynamic"
	case ModeReversal:
		return "reversal"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct":
		return ModeDirect, nil
	case "dynamic":
		return ModeDynamic, nil
	case "reversal":
		return ModeReversal, nil
	default:
		return 0, fmt.Errorf("unknown hedge mode %q", s)
	}
}

// SizeMode 对冲数量来源。
type SizeMode int

const (
	// SizeNetPosition 按网格净敞口
	SizeNetPosition SizeMode = iota
	// SizeFixed 按单档下单量的固定比例
	SizeFixed
)

func (m SizeMode) String() string {
	if m == SizeFixed {
		return "fixed"
	}
	return "net_position"
}

func ParseSizeMode(s string) (SizeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "net_position":
		return SizeNetPosition, nil
	case "fixed":
		return SizeFixed, nil
	default:
		return 0, fmt.Errorf("unknown hedge size mode %q", s)
	}
}

// MinExposure 低于该数量的净敞口视为已对平。
const MinExposure = 0.001

// Config 对冲参数。TriggerOffset 以网格步长为单位。
type Config struct {
	Enabled           bool
	Preemptive        bool
	Mode              Mode
	TriggerOffset     float64
	PartialLevels     []float64
	CloseOnReentry    bool
	SizeMode          SizeMode
	FixedSizeRatio    float64
	PriceProtectScope float64
}

func DefaultConfig() Config {
	return Config{
		Mode:              ModeDirect,
		TriggerOffset:     1,
		PartialLevels:     []float64{0.5, 0.75, 1},
		CloseOnReentry:    true,
		SizeMode:          SizeNetPosition,
		FixedSizeRatio:    0.5,
		PriceProtectScope: 0.05,
	}
}

// Validate 未启用时不检查。
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TriggerOffset < 0.1 || c.TriggerOffset > 10 {
		return fmt.Errorf("hedge trigger offset %v must be in [0.1, 10]", c.TriggerOffset)
	}
	if c.Mode == ModeDynamic && len(c.PartialLevels) == 0 {
		return fmt.Errorf("dynamic hedge needs partial levels")
	}
	for _, f := range c.PartialLevels {
		if f <= 0 || f > 1 {
			return fmt.Errorf("hedge partial level %v must be in (0, 1]", f)
		}
	}
	if c.SizeMode == SizeFixed && (c.FixedSizeRatio <= 0 || c.FixedSizeRatio > 1) {
		return fmt.Errorf("hedge fixed size ratio %v must be in (0, 1]", c.FixedSizeRatio)
	}
	if c.PriceProtectScope < 0 || c.PriceProtectScope >= 1 {
		return fmt.Errorf("hedge price protect scope %v must be in [0, 1)", c.PriceProtectScope)
	}
	return nil
}

// Bounds 当前阶梯的边界，Step 取最低两档的价差。
type Bounds struct {
	Lower     float64
	Upper     float64
	Step      float64
	Direction strategy.Direction
}

// Breakout 价格相对触发线的位置。
type Breakout int

const (
	BreakoutNone Breakout = iota
	BreakoutBelow
	BreakoutAbove
)

func (b Breakout) String() string {
	switch b {
	case BreakoutBelow:
		return "below"
	case BreakoutAbove:
		return "above"
	default:
		return "none"
	}
}

// Triggers 上下触发价：边界向外 Step*TriggerOffset。
func (c Config) Triggers(b Bounds) (lower, upper float64) {
	off := b.Step * c.TriggerOffset
	return b.Lower - off, b.Upper + off
}

func (c Config) Detect(price float64, b Bounds) Breakout {
	lower, upper := c.Triggers(b)
	switch {
	case price <= lower:
		return BreakoutBelow
	case price >= upper:
		return BreakoutAbove
	default:
		return BreakoutNone
	}
}

// Leg 一笔对冲限价单。
type Leg struct {
	Side  order.Side
	Price float64
	Size  float64
}

// gridSide 单向网格的开仓方向；both 不对冲。
func gridSide(d strategy.Direction) (order.Side, bool) {
	switch d {
	case strategy.DirectionLong:
		return order.Buy, true
	case strategy.DirectionShort:
		return order.Sell, true
	default:
		return "", false
	}
}

// BreakoutLegs 多头网格向下突破挂卖单、空头网格向上突破挂买单，其余情况不对冲。
// exposure 为净敞口绝对值，unit 为单档下单量。
func (c Config) BreakoutLegs(b Bounds, br Breakout, exposure, unit float64) []Leg {
	gs, ok := gridSide(b.Direction)
	if !ok {
		return nil
	}
	lower, upper := c.Triggers(b)
	var base float64
	switch {
	case gs == order.Buy && br == BreakoutBelow:
		base = lower
	case gs == order.Sell && br == BreakoutAbove:
		base = upper
	default:
		return nil
	}
	side := gs.Opposite()

	switch c.Mode {
	case ModeDynamic:
		legs := make([]Leg, 0, len(c.PartialLevels))
		for _, f := range c.PartialLevels {
			px := base + b.Step*f
			if side == order.Sell {
				px = base - b.Step*f
			}
			legs = append(legs, Leg{Side: side, Price: px, Size: c.size(f, 1, exposure, unit)})
		}
		return legs
	case ModeReversal:
		return []Leg{{Side: side, Price: base, Size: c.size(1, 2, exposure, unit)}}
	default:
		return []Leg{{Side: side, Price: base, Size: c.size(1, 1, exposure, unit)}}
	}
}

// size 固定模式不受倍数影响。
func (c Config) size(fraction, mult, exposure, unit float64) float64 {
	if c.SizeMode == SizeFixed {
		return c.FixedSizeRatio * unit * fraction
	}
	return exposure * fraction * mult
}

// PreemptiveLeg 按净敞口在网格外一档预挂的反向单。net 接近 0 或 both 方向时没有。
func (c Config) PreemptiveLeg(b Bounds, net float64) (Leg, bool) {
	size := math.Abs(net)
	if size < MinExposure {
		return Leg{}, false
	}
	gs, ok := gridSide(b.Direction)
	if !ok {
		return Leg{}, false
	}
	if gs == order.Buy {
		return Leg{Side: gs.Opposite(), Price: b.Lower - b.Step, Size: size}, true
	}
	return Leg{Side: gs.Opposite(), Price: b.Upper + b.Step, Size: size}, true
}

// InScope 对冲价离现价不超过 PriceProtectScope，否则暂缓挂单。
func (c Config) InScope(leg Leg, live float64) bool {
	if c.PriceProtectScope <= 0 || live <= 0 {
		return true
	}
	if leg.Side == order.Sell {
		return leg.Price >= live*(1-c.PriceProtectScope)
	}
	return leg.Price <= live*(1+c.PriceProtectScope)
}
