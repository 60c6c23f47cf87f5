package order

import (
	"sync"
	"time"

	"grid-maker-go/internal/clock"
)

// FillEvent 成交事件。Assumed 表示由“快照中消失”推断，而非交易所明确回报。
type FillEvent struct {
	OrderID   string
	Level     int
	Side      Side
	Price     float64
	Assumed   bool
	Timestamp time.Time
}

// FillTracker 跟踪成交历史（滑动窗口）
type FillTracker struct {
	mu    sync.RWMutex
	clock clock.Clock

	recentFills []FillEvent
	maxHistory  int
	windowSize  time.Duration

	totalFills   int
	assumedFills int
}

// NewFillTracker 创建成交跟踪器
func NewFillTracker(maxHistory int, windowSize time.Duration, c clock.Clock) *FillTracker {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	if windowSize <= 0 {
		windowSize = 5 * time.Minute
	}
	if c == nil {
		c = clock.Real
	}
	return &FillTracker{
		clock:       c,
		recentFills: make([]FillEvent, 0, maxHistory),
		maxHistory:  maxHistory,
		windowSize:  windowSize,
	}
}

// Record 记录成交
func (f *FillTracker) Record(ev FillEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = f.clock.Now()
	}
	f.recentFills = append(f.recentFills, ev)
	f.totalFills++
	if ev.Assumed {
		f.assumedFills++
	}
	f.pruneLocked()
}

func (f *FillTracker) pruneLocked() {
	cutoff := f.clock.Now().Add(-f.windowSize)
	start := len(f.recentFills)
	for i, ev := range f.recentFills {
		if ev.Timestamp.After(cutoff) {
			start = i
			break
		}
	}
	f.recentFills = f.recentFills[start:]
	if len(f.recentFills) > f.maxHistory {
		f.recentFills = f.recentFills[len(f.recentFills)-f.maxHistory:]
	}
}

// RecentFillRate 窗口内每分钟成交次数
func (f *FillTracker) RecentFillRate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cutoff := f.clock.Now().Add(-f.windowSize)
	count := 0
	for _, ev := range f.recentFills {
		if ev.Timestamp.After(cutoff) {
			count++
		}
	}
	if m := f.windowSize.Minutes(); m > 0 {
		return float64(count) / m
	}
	return 0
}

// Stats 获取统计信息
func (f *FillTracker) Stats() FillTrackerStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FillTrackerStats{
		TotalFills:   f.totalFills,
		AssumedFills: f.assumedFills,
		RecentFills:  len(f.recentFills),
	}
}

// Reset 重置跟踪器
func (f *FillTracker) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentFills = make([]FillEvent, 0, f.maxHistory)
	f.totalFills = 0
	f.assumedFills = 0
}

// FillTrackerStats 成交跟踪器统计
type FillTrackerStats struct {
	TotalFills   int
	AssumedFills int
	RecentFills  int
}
