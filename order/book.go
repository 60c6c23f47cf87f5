package order

import (
	"context"
	"sync"
	"time"

	"grid-maker-go/internal/clock"
)

// DefaultBookTTL 快照超过该时长视为过期，下次读取时强制刷新。
const DefaultBookTTL = 300 * time.Second

// Book 账户级挂单快照缓存：一次网络拉取服务多个交易对。
type Book struct {
	mu        sync.RWMutex
	lister    AccountLister
	ttl       time.Duration
	clock     clock.Clock
	orders    map[string][]OpenOrder
	fetchedAt time.Time
	version   int64
	refreshes int64
}

func NewBook(lister AccountLister, ttl time.Duration, c clock.Clock) *Book {
	if ttl <= 0 {
		ttl = DefaultBookTTL
	}
	if c == nil {
		c = clock.Real
	}
	return &Book{
		lister: lister,
		ttl:    ttl,
		clock:  c,
		orders: make(map[string][]OpenOrder),
	}
}

// Refresh 拉取全账户挂单并按交易对分组覆盖本地快照。
// 拉取期间发生过 Invalidate 时，结果可用但仍视为过期。
func (b *Book) Refresh(ctx context.Context) error {
	b.mu.RLock()
	version := b.version
	b.mu.RUnlock()

	all, err := b.lister.ListAllOpenOrders(ctx)
	if err != nil {
		return WrapTransport("list_all_open_orders", "", err)
	}
	grouped := make(map[string][]OpenOrder)
	for _, o := range all {
		grouped[o.Symbol] = append(grouped[o.Symbol], o)
	}
	b.mu.Lock()
	b.orders = grouped
	if b.version == version {
		b.fetchedAt = b.clock.Now()
	}
	b.refreshes++
	b.mu.Unlock()
	return nil
}

// Invalidate 本地下单/撤单/成交后调用，下一次读取重新拉取。
func (b *Book) Invalidate() {
	b.mu.Lock()
	b.version++
	b.fetchedAt = time.Time{}
	b.mu.Unlock()
}

// Stale 快照是否已过期（从未拉取也算过期）。
func (b *Book) Stale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fetchedAt.IsZero() || b.clock.Now().Sub(b.fetchedAt) >= b.ttl
}

// ListOpenOrders 实现 OpenOrderSource；过期时先刷新。
func (b *Book) ListOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	if b.Stale() {
		if err := b.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.orders[symbol]
	res := make([]OpenOrder, len(src))
	copy(res, src)
	return res, nil
}

// Refreshes 返回累计网络刷新次数。
func (b *Book) Refreshes() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.refreshes
}
