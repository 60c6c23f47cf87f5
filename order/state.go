package order

import (
	"fmt"
	"strings"
)

// Side 订单方向。
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide 解析 BUY/SELL（大小写不敏感）。
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Opposite 返回反方向。
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OpenOrder 交易所挂单快照中的一条记录。
type OpenOrder struct {
	ID     string
	Symbol string
	Side   Side
	Price  float64
	Size   float64
}

// Sizing 描述下单量的推导参数，随请求透传给网关。
type Sizing struct {
	BaseSize    float64
	IncludeFees bool
	FeeSide     string
	FeePct      float64
}

// PlaceRequest 网格下单请求。TakeProfit/StopLoss 为 nil 表示不带目标价。
type PlaceRequest struct {
	Symbol     string
	Side       Side
	Price      float64
	Size       float64
	TakeProfit *float64
	StopLoss   *float64
	ClientID   string
	Sizing     Sizing
}

// Notional 名义价值。
func (r PlaceRequest) Notional() float64 {
	return r.Price * r.Size
}
