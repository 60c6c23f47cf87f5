package strategy

import "github.com/shopspring/decimal"

// PricePrecision 价格统一保留的小数位，避免浮点漂移。
const PricePrecision = 12

// SizePrecision 下单量保留的小数位。
const SizePrecision = 8

// RoundToTick 四舍六入五成双到最近的 tick 整数倍：round(price/tick)*tick，保留 12 位小数。
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	steps := decimal.NewFromFloat(price).DivRound(t, 16).RoundBank(0)
	f, _ := steps.Mul(t).Round(PricePrecision).Float64()
	return f
}

// IsTickMultiple 判断 price 是否恰为 tick 的整数倍。
func IsTickMultiple(price, tick float64) bool {
	if tick <= 0 {
		return false
	}
	return decimal.NewFromFloat(price).Mod(decimal.NewFromFloat(tick)).IsZero()
}
