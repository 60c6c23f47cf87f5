package order

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedGateway 所有请求共用一个令牌桶，避免触发交易所限流。
// 等待被 ctx 取消时返回 TransportError。
type RateLimitedGateway struct {
	next    Gateway
	limiter *rate.Limiter
}

// NewRateLimitedGateway perSec<=0 时不限速，直接返回 next。
func NewRateLimitedGateway(next Gateway, perSec float64, burst int) Gateway {
	if perSec <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedGateway{next: next, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (g *RateLimitedGateway) Place(ctx context.Context, req PlaceRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", WrapTransport("rate_limit", req.Symbol, err)
	}
	return g.next.Place(ctx, req)
}

func (g *RateLimitedGateway) Cancel(ctx context.Context, symbol, orderID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return WrapTransport("rate_limit", symbol, err)
	}
	return g.next.Cancel(ctx, symbol, orderID)
}

func (g *RateLimitedGateway) ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, WrapTransport("rate_limit", symbol, err)
	}
	return g.next.ListOpenOrders(ctx, symbol)
}
