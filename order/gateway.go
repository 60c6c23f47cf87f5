package order

import "context"

// Placer 下单能力，由外部传输层实现。
type Placer interface {
	Place(ctx context.Context, req PlaceRequest) (string, error)
}

// Canceler 撤单能力。
type Canceler interface {
	Cancel(ctx context.Context, symbol, orderID string) error
}

// OpenOrderSource 返回某交易对当前挂单的时点快照。
// 调用方不关心快照来源（直连 REST 或账户级共享缓存）。
type OpenOrderSource interface {
	ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
}

// AccountLister 一次拉取账户下所有交易对的挂单。
type AccountLister interface {
	ListAllOpenOrders(ctx context.Context) ([]OpenOrder, error)
}

// Gateway 网格核心依赖的完整交易所能力。
type Gateway interface {
	Placer
	Canceler
	OpenOrderSource
}
