package grid

import (
	"errors"
	"fmt"
)

var (
	ErrNoLevel      = errors.New("level not found")
	ErrLevelState   = errors.New("illegal level transition")
	ErrOrderTracked = errors.New("order already tracked by another level")
)

// Counts 各状态档位数量。
type Counts struct {
	Idle   int
	Active int
	Filled int
}

// Store 持有网格所有档位，是本地唯一事实来源。
// 由单个交易对的所有者串行访问，不加锁。
type Store struct {
	levels     []Level
	generation int
}

func NewStore() *Store {
	return &Store{}
}

// Replace 整体替换档位（重建网格），不保留任何旧订单号。
func (s *Store) Replace(levels []Level) {
	next := make([]Level, len(levels))
	for i, l := range levels {
		l.Index = i
		l.OrderID = ""
		l.Active = false
		l.Filled = false
		next[i] = l
	}
	s.levels = next
	s.generation++
}

// Generation 每次 Replace 自增，用于识别重建。
func (s *Store) Generation() int { return s.generation }

func (s *Store) Len() int { return len(s.levels) }

// Levels 返回副本。
func (s *Store) Levels() []Level {
	out := make([]Level, len(s.levels))
	copy(out, s.levels)
	return out
}

// Prices 档位价格序列（升序）。
func (s *Store) Prices() []float64 {
	out := make([]float64, len(s.levels))
	for i, l := range s.levels {
		out[i] = l.Price
	}
	return out
}

func (s *Store) Level(i int) (Level, bool) {
	if i < 0 || i >= len(s.levels) {
		return Level{}, false
	}
	return s.levels[i], true
}

// ByOrderID 按订单号查找档位下标。
func (s *Store) ByOrderID(id string) (int, bool) {
	if id == "" {
		return 0, false
	}
	for i, l := range s.levels {
		if l.OrderID == id {
			return i, true
		}
	}
	return 0, false
}

// Activate IDLE → ACTIVE。orderID 为空表示模拟下单。
func (s *Store) Activate(i int, orderID string) error {
	l, err := s.at(i)
	if err != nil {
		return err
	}
	if l.Status() != StatusIdle {
		return fmt.Errorf("%w: activate level %d in %s", ErrLevelState, i, l.Status())
	}
	if j, ok := s.ByOrderID(orderID); ok {
		return fmt.Errorf("%w: %s on level %d", ErrOrderTracked, orderID, j)
	}
	l.Active = true
	l.OrderID = orderID
	return nil
}

// MarkFilled ACTIVE → FILLED，清除订单号。
func (s *Store) MarkFilled(i int) error {
	l, err := s.at(i)
	if err != nil {
		return err
	}
	if l.Status() != StatusActive {
		return fmt.Errorf("%w: fill level %d in %s", ErrLevelState, i, l.Status())
	}
	l.Active = false
	l.Filled = true
	l.OrderID = ""
	return nil
}

// Release ACTIVE → IDLE（撤单），之后的 tick 可重新入场。
func (s *Store) Release(i int) error {
	l, err := s.at(i)
	if err != nil {
		return err
	}
	if l.Status() != StatusActive {
		return fmt.Errorf("%w: release level %d in %s", ErrLevelState, i, l.Status())
	}
	l.Active = false
	l.OrderID = ""
	return nil
}

// Reopen FILLED → IDLE（仓位已平），档位可再次入场。
func (s *Store) Reopen(i int) error {
	l, err := s.at(i)
	if err != nil {
		return err
	}
	if l.Status() != StatusFilled {
		return fmt.Errorf("%w: reopen level %d in %s", ErrLevelState, i, l.Status())
	}
	l.Filled = false
	return nil
}

func (s *Store) Counts() Counts {
	var c Counts
	for _, l := range s.levels {
		switch l.Status() {
		case StatusIdle:
			c.Idle++
		case StatusActive:
			c.Active++
		case StatusFilled:
			c.Filled++
		}
	}
	return c
}

func (s *Store) at(i int) (*Level, error) {
	if i < 0 || i >= len(s.levels) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrNoLevel, i, len(s.levels))
	}
	return &s.levels[i], nil
}
