package grid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-maker-go/order"
)

func threeLevels() []Level {
	return []Level{
		{Price: 10, Side: order.Buy},
		{Price: 11, Side: order.Buy},
		{Price: 12, Side: order.Sell},
	}
}

func TestStoreLevelTransitions(t *testing.T) {
	s := NewStore()
	s.Replace(threeLevels())
	require.Equal(t, 3, s.Len())
	assert.Equal(t, 1, s.Generation())

	require.NoError(t, s.Activate(0, "o-1"))
	l, _ := s.Level(0)
	assert.Equal(t, StatusActive, l.Status())
	assert.Equal(t, "o-1", l.OrderID)

	// 同一订单号不能挂在两个档位
	err := s.Activate(1, "o-1")
	assert.True(t, errors.Is(err, ErrOrderTracked))

	// 已激活档位不能重复激活
	assert.True(t, errors.Is(s.Activate(0, "o-2"), ErrLevelState))

	require.NoError(t, s.MarkFilled(0))
	l, _ = s.Level(0)
	assert.Equal(t, StatusFilled, l.Status())
	assert.Empty(t, l.OrderID)
	assert.False(t, l.Active)

	assert.True(t, errors.Is(s.Release(0), ErrLevelState))
	assert.True(t, errors.Is(s.MarkFilled(1), ErrLevelState))
	assert.True(t, errors.Is(s.Activate(7, ""), ErrNoLevel))

	require.NoError(t, s.Activate(2, "o-3"))
	require.NoError(t, s.Release(2))
	l, _ = s.Level(2)
	assert.Equal(t, StatusIdle, l.Status())
	assert.Empty(t, l.OrderID)

	assert.Equal(t, Counts{Idle: 2, Filled: 1}, s.Counts())
}

func TestStoreDryRunActivation(t *testing.T) {
	s := NewStore()
	s.Replace(threeLevels())
	require.NoError(t, s.Activate(0, ""))
	require.NoError(t, s.Activate(1, ""))
	_, ok := s.ByOrderID("")
	assert.False(t, ok)
	assert.Equal(t, 2, s.Counts().Active)
}

func TestStoreReplaceClearsOrders(t *testing.T) {
	s := NewStore()
	s.Replace(threeLevels())
	require.NoError(t, s.Activate(0, "o-1"))
	require.NoError(t, s.Activate(2, "o-2"))
	require.NoError(t, s.MarkFilled(2))

	dirty := s.Levels()
	dirty[1].OrderID = "leftover"
	dirty[1].Active = true
	s.Replace(dirty)

	assert.Equal(t, 2, s.Generation())
	for i, l := range s.Levels() {
		assert.Equal(t, i, l.Index)
		assert.Equal(t, StatusIdle, l.Status())
		assert.Empty(t, l.OrderID)
	}
	assert.Equal(t, []float64{10, 11, 12}, s.Prices())
}

func TestStoreLevelsIsCopy(t *testing.T) {
	s := NewStore()
	s.Replace(threeLevels())
	ls := s.Levels()
	ls[0].Active = true
	l, _ := s.Level(0)
	assert.False(t, l.Active)
}

func TestStoreReopenAfterClose(t *testing.T) {
	s := NewStore()
	s.Replace(threeLevels())

	assert.ErrorIs(t, s.Reopen(0), ErrLevelState)
	require.NoError(t, s.Activate(0, "a"))
	assert.ErrorIs(t, s.Reopen(0), ErrLevelState)
	require.NoError(t, s.MarkFilled(0))
	require.NoError(t, s.Reopen(0))

	l, _ := s.Level(0)
	assert.Equal(t, StatusIdle, l.Status())
	assert.Empty(t, l.OrderID)
	require.NoError(t, s.Activate(0, "b"))
	assert.ErrorIs(t, s.Reopen(7), ErrNoLevel)
}
