package lifecycle

import (
	"fmt"
	"time"

	"grid-maker-go/internal/clock"
)

// State 网格生命周期状态
type State string

const (
	StateInit   State = "INIT"
	StateActive State = "ACTIVE"
	StatePaused State = "PAUSED"
	StateError  State = "ERROR"
	StateClosed State = "CLOSED"
)

// DefaultRetryInterval 进入 ERROR 后至少等待该时长才提示可重试。
const DefaultRetryInterval = 30 * time.Second

// 合法转换表，CLOSED 为终态
var transitions = map[State][]State{
	StateInit:   {StateActive, StateError, StateClosed},
	StateActive: {StatePaused, StateError, StateClosed},
	StatePaused: {StateActive, StateError, StateClosed},
	StateError:  {StateActive, StatePaused, StateClosed},
	StateClosed: nil,
}

// CanTransition 纯函数，判断 from → to 是否合法。
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError 非法转换，属于调用方错误，状态保持不变。
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid lifecycle transition %s -> %s", e.From, e.To)
}

// Transition 一次已生效的状态转换。
type Transition struct {
	From    State
	To      State
	Message string
	At      time.Time
}

// Machine 单个网格实例的生命周期。只做状态计算，副作用由调用方通过 Dispatch 派发。
// 与网格管理器同属一个所有者，不加锁。
type Machine struct {
	state     State
	since     time.Time
	lastError string
	history   []Transition
	maxHist   int
	clock     clock.Clock
}

func New(c clock.Clock) *Machine {
	if c == nil {
		c = clock.Real
	}
	return &Machine{
		state:   StateInit,
		since:   c.Now(),
		maxHist: 50,
		clock:   c,
	}
}

func (m *Machine) State() State { return m.state }

// Since 进入当前状态的时间
func (m *Machine) Since() time.Time { return m.since }

func (m *Machine) LastError() string { return m.lastError }

// Is 当前是否处于给定状态之一。
func (m *Machine) Is(states ...State) bool {
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}

// Transition 执行转换；非法时返回 *InvalidTransitionError 且不修改状态。
func (m *Machine) Transition(to State, msg string) (Transition, error) {
	if !CanTransition(m.state, to) {
		return Transition{}, &InvalidTransitionError{From: m.state, To: to}
	}
	t := Transition{From: m.state, To: to, Message: msg, At: m.clock.Now()}
	m.state = to
	m.since = t.At
	if to == StateError {
		m.lastError = msg
	}
	m.history = append(m.history, t)
	if len(m.history) > m.maxHist {
		m.history = m.history[len(m.history)-m.maxHist:]
	}
	return t, nil
}

// History 最近的转换记录（副本）。
func (m *Machine) History() []Transition {
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// CanRetry 处于 ERROR 且已超过 interval。
func (m *Machine) CanRetry(interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return m.state == StateError && m.clock.Now().Sub(m.since) >= interval
}

// Summary 状态快照
type Summary struct {
	State       State
	Since       time.Time
	Uptime      time.Duration
	LastError   string
	Transitions int
	CanRetry    bool
}

func (m *Machine) Summary() Summary {
	return Summary{
		State:       m.state,
		Since:       m.since,
		Uptime:      m.clock.Now().Sub(m.since),
		LastError:   m.lastError,
		Transitions: len(m.history),
		CanRetry:    m.CanRetry(DefaultRetryInterval),
	}
}
