package order

import (
	"sync"
	"time"

	"grid-maker-go/internal/clock"
)

// CancelSignal 报告某订单是否被交易所明确撤销。
// 仅凭挂单快照无法区分成交与撤单，有该信号时对账器优先采信。
type CancelSignal interface {
	Canceled(orderID string) bool
}

// CancelLedger 记录行情/用户流推送的撤单事件，超过保留期自动清理。
type CancelLedger struct {
	mu        sync.Mutex
	ids       map[string]time.Time
	retention time.Duration
	clock     clock.Clock
}

func NewCancelLedger(retention time.Duration, c clock.Clock) *CancelLedger {
	if retention <= 0 {
		retention = time.Hour
	}
	if c == nil {
		c = clock.Real
	}
	return &CancelLedger{
		ids:       make(map[string]time.Time),
		retention: retention,
		clock:     c,
	}
}

// Record 登记一次明确撤单。
func (l *CancelLedger) Record(orderID string) {
	if orderID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.ids[orderID] = now
	for id, at := range l.ids {
		if now.Sub(at) > l.retention {
			delete(l.ids, id)
		}
	}
}

func (l *CancelLedger) Canceled(orderID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.ids[orderID]
	return ok
}

// Len 当前登记条数。
func (l *CancelLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
