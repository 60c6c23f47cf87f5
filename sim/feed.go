package sim

import (
	"context"
	"math/rand"
	"time"

	"grid-maker-go/strategy"
)

// PriceFeed 可复现的随机游走行情，每步在 ±stepPct 内均匀波动。
type PriceFeed struct {
	price   float64
	stepPct float64
	tick    float64
	floor   float64
	rng     *rand.Rand
}

func NewPriceFeed(start, stepPct, tick float64, seed int64) *PriceFeed {
	return &PriceFeed{
		price:   start,
		stepPct: stepPct,
		tick:    tick,
		floor:   tick,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (f *PriceFeed) Price() float64 { return f.price }

// Next 推进一步并返回新价格（按 tick 取整，不低于一个 tick）。
func (f *PriceFeed) Next() float64 {
	move := (f.rng.Float64()*2 - 1) * f.stepPct
	p := strategy.RoundToTick(f.price*(1+move), f.tick)
	if p < f.floor {
		p = f.floor
	}
	f.price = p
	return p
}

// Run 每个 interval 推送一次价格，ctx 结束时关闭 out。
// 消费方跟不上时丢弃旧价格，只保留最新。
func (f *PriceFeed) Run(ctx context.Context, interval time.Duration, out chan float64) {
	defer close(out)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p := f.Next()
			select {
			case out <- p:
			default:
				select {
				case <-out:
				default:
				}
				select {
				case out <- p:
				default:
				}
			}
		}
	}
}
