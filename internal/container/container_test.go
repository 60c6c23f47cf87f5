package container

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-maker-go/config"
	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/internal/engine"
	"grid-maker-go/internal/lifecycle"
)

const testConfig = `
env: test
sync:
  intervalSec: 1
feed:
  seed: 7
symbols:
  XRPUSDC:
    lowerPrice: 0.85
    upperPrice: 0.95
    levels: 20
    tickSize: 0.0001
    stepSize: 0.1
    baseOrderSize: 50
    tpMode: percent
    takeProfitPct: 0.003
  ADAUSDC:
    lowerPrice: 0.4
    upperPrice: 0.6
    levels: 10
    direction: long
    tickSize: 0.0001
    stepSize: 1
    baseOrderSize: 100
    dryRun: true
`

func testContainer(t *testing.T) (*Container, config.AppConfig) {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	require.NoError(t, config.Validate(cfg))
	c := NewFromConfig(cfg, Options{FeedInterval: 2 * time.Millisecond, Logger: logger.NewNop()})
	require.NoError(t, c.Build())
	return c, cfg
}

func TestContainerRunsAndClosesGrids(t *testing.T) {
	c, _ := testContainer(t)
	assert.Equal(t, []string{"ADAUSDC", "XRPUSDC"}, c.Symbols())
	assert.Equal(t, []string{"open_order_book", "grid:ADAUSDC", "grid:XRPUSDC"}, c.components.Names())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool {
		var ticks int64
		_ = c.Do(ctx, "XRPUSDC", func(m *engine.GridManager) { ticks = m.Stats().Ticks })
		return ticks > 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.HealthCheck())

	var placed, simulated int64
	require.NoError(t, c.Do(ctx, "XRPUSDC", func(m *engine.GridManager) {
		assert.Equal(t, lifecycle.StateActive, m.State())
		placed = m.Stats().Entries
	}))
	require.NoError(t, c.Do(ctx, "ADAUSDC", func(m *engine.GridManager) {
		simulated = m.Stats().Simulated
	}))
	assert.Greater(t, placed, int64(0))
	assert.Greater(t, simulated, int64(0))
	assert.Error(t, c.Do(ctx, "BTCUSDC", func(*engine.GridManager) {}))

	require.NoError(t, c.Stop())
	err := c.Do(ctx, "XRPUSDC", func(*engine.GridManager) {})
	assert.ErrorIs(t, err, engine.ErrRunnerStopped)
	// 网格关闭时不撤单，挂单留在交易所
	assert.Greater(t, c.Exchange().OpenCount(), 0)
}

func TestContainerApplyConfig(t *testing.T) {
	c, cfg := testContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	g := cfg.Symbols["XRPUSDC"]
	g.LowerPrice = 0.8
	cfg.Symbols["XRPUSDC"] = g
	c.applyConfig(cfg)

	var lower float64
	require.NoError(t, c.Do(ctx, "XRPUSDC", func(m *engine.GridManager) {
		require.NoError(t, m.Rebalance())
		lower = m.Levels()[0].Price
	}))
	assert.Equal(t, 0.8, lower)
}

type fakeComponent struct {
	name     string
	startErr error
	started  bool
	stopped  bool
	log      *[]string
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	*f.log = append(*f.log, "start:"+f.name)
	return nil
}

func (f *fakeComponent) Stop() error {
	f.stopped = true
	*f.log = append(*f.log, "stop:"+f.name)
	return nil
}

func (f *fakeComponent) Health() error {
	if !f.started {
		return errors.New("not started")
	}
	return nil
}

func TestSupervisorOrder(t *testing.T) {
	var log []string
	s := NewSupervisor(nil)
	a := &fakeComponent{name: "a", log: &log}
	b := &fakeComponent{name: "b", log: &log}
	s.Add(a)
	s.Add(b)

	if err := s.Health(); err == nil {
		t.Fatalf("components are not started, health must fail")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Health(); err != nil {
		t.Fatalf("health: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// 第二次停止不会再调用组件
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

func TestSupervisorRollback(t *testing.T) {
	var log []string
	s := NewSupervisor(nil)
	a := &fakeComponent{name: "a", log: &log}
	bad := &fakeComponent{name: "bad", log: &log, startErr: errors.New("port in use")}
	c := &fakeComponent{name: "c", log: &log}
	s.Add(a)
	s.Add(bad)
	s.Add(c)

	err := s.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "component bad") {
		t.Fatalf("expected start error naming the component, got %v", err)
	}
	if !errors.Is(err, bad.startErr) {
		t.Fatalf("start error must wrap the cause: %v", err)
	}
	if !a.stopped || bad.stopped || c.started {
		t.Fatalf("rollback: a.stopped=%v bad.stopped=%v c.started=%v", a.stopped, bad.stopped, c.started)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stop after rollback: %v", err)
	}
}

func TestAdminServerLifecycle(t *testing.T) {
	srv := &adminServer{addr: "127.0.0.1:0", handler: http.NotFoundHandler(), log: logger.NewNop()}
	if err := srv.Health(); err == nil {
		t.Fatalf("health before start must fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	addr := srv.Addr()
	if addr == "" {
		t.Fatalf("listening address is empty")
	}

	// 端口已占用时同步失败
	dup := &adminServer{addr: addr, handler: http.NotFoundHandler(), log: logger.NewNop()}
	if err := dup.Start(context.Background()); err == nil {
		_ = dup.Stop()
		t.Fatalf("expected bind failure on %s", addr)
	}

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if srv.Addr() != "" || srv.Health() == nil {
		t.Fatalf("server must report stopped")
	}
}
