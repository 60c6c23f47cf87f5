package alert

import (
	"fmt"
	"sync"
	"time"

	"grid-maker-go/internal/clock"
)

// Level 告警级别
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Alert 告警信息
type Alert struct {
	Level     Level
	Symbol    string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警通道接口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Throttler 同一 key 在 interval 内只放行一次。
type Throttler struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	interval time.Duration
	clock    clock.Clock
}

func NewThrottler(interval time.Duration, c clock.Clock) *Throttler {
	if c == nil {
		c = clock.Real
	}
	return &Throttler{
		lastSent: make(map[string]time.Time),
		interval: interval,
		clock:    c,
	}
}

func (t *Throttler) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	if last, ok := t.lastSent[key]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSent[key] = now
	return true
}

func (t *Throttler) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = make(map[string]time.Time)
}

// Manager 告警管理器，按 级别+交易对+消息 限流后广播到所有通道。
type Manager struct {
	mu       sync.RWMutex
	channels []Channel
	throttle *Throttler
	clock    clock.Clock
}

func NewManager(channels []Channel, throttleInterval time.Duration, c clock.Clock) *Manager {
	if c == nil {
		c = clock.Real
	}
	return &Manager{
		channels: channels,
		throttle: NewThrottler(throttleInterval, c),
		clock:    c,
	}
}

// Send 发送告警；被限流时静默返回 nil，全部通道失败才返回错误。
func (m *Manager) Send(a Alert) error {
	if m == nil {
		return nil
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = m.clock.Now()
	}
	if !m.throttle.Allow(fmt.Sprintf("%s:%s:%s", a.Level, a.Symbol, a.Message)) {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var lastErr error
	ok := 0
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			lastErr = fmt.Errorf("channel %s failed: %w", ch.Name(), err)
			continue
		}
		ok++
	}
	if ok == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (m *Manager) Info(symbol, msg string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelInfo, Symbol: symbol, Message: msg, Fields: fields})
}

func (m *Manager) Warning(symbol, msg string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelWarning, Symbol: symbol, Message: msg, Fields: fields})
}

func (m *Manager) Critical(symbol, msg string, fields map[string]interface{}) error {
	return m.Send(Alert{Level: LevelCritical, Symbol: symbol, Message: msg, Fields: fields})
}

func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
}

// Channels 通道名称列表
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (m *Manager) ResetThrottle() {
	m.throttle.Clear()
}
