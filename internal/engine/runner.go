package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/internal/lifecycle"
)

// ErrRunnerStopped Runner 已退出，命令无法执行。
var ErrRunnerStopped = errors.New("runner stopped")

// TickHook 每个价格在 Update 之前调用，用于撮合模拟成交等。
type TickHook func(ctx context.Context, m *GridManager, price float64)

// RunnerConfig 运行参数
type RunnerConfig struct {
	SyncInterval  time.Duration // <=0 不做定时对账
	RetryInterval time.Duration // ERROR 持续该时长后自动恢复，<=0 关闭
	BeforeTick    TickHook
}

// Runner 单个交易对的事件循环。价格、定时对账和外部命令都在同一个 goroutine 里串行执行。
type Runner struct {
	mgr    *GridManager
	prices <-chan float64
	cfg    RunnerConfig
	log    *logger.Logger
	cmds   chan func(*GridManager)

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewRunner(m *GridManager, prices <-chan float64, cfg RunnerConfig, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{
		mgr:      m,
		prices:   prices,
		cfg:      cfg,
		log:      log.Named("runner").WithFields(map[string]interface{}{"symbol": m.Symbol()}),
		cmds:     make(chan func(*GridManager)),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start 启动事件循环，只能调用一次。
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("runner %s already started", r.mgr.Symbol())
	}
	r.started = true
	go r.run(ctx)
	r.log.Info("Runner started",
		zap.Duration("sync_interval", r.cfg.SyncInterval),
		zap.Duration("retry_interval", r.cfg.RetryInterval))
	return nil
}

// Stop 停止事件循环并等待退出。
func (r *Runner) Stop() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-r.stopChan:
	default:
		close(r.stopChan)
	}

	select {
	case <-r.doneChan:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timeout waiting for runner %s to stop", r.mgr.Symbol())
	}
	return nil
}

// Done 事件循环退出时关闭。
func (r *Runner) Done() <-chan struct{} { return r.doneChan }

// Do 在事件循环内执行 fn 并等待完成。
func (r *Runner) Do(ctx context.Context, fn func(*GridManager)) error {
	finished := make(chan struct{})
	wrapped := func(m *GridManager) {
		defer close(finished)
		fn(m)
	}
	select {
	case r.cmds <- wrapped:
	case <-r.doneChan:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.doneChan)

	var syncC <-chan time.Time
	if r.cfg.SyncInterval > 0 {
		t := time.NewTicker(r.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Context done, stopping runner")
			return

		case <-r.stopChan:
			r.log.Info("Stop signal received")
			return

		case price, ok := <-r.prices:
			if !ok {
				r.log.Info("Price feed closed, stopping runner")
				return
			}
			r.maybeRetry()
			if r.cfg.BeforeTick != nil {
				r.cfg.BeforeTick(ctx, r.mgr, price)
			}
			r.mgr.Update(ctx, price)

		case <-syncC:
			r.maybeRetry()
			if _, err := r.mgr.Sync(ctx); err != nil && !errors.Is(err, ErrNotActive) {
				r.log.Warn("Sync failed", zap.Error(err))
			}

		case fn := <-r.cmds:
			fn(r.mgr)
		}

		if r.mgr.State() == lifecycle.StateClosed {
			r.log.Info("Grid closed, stopping runner")
			return
		}
	}
}

func (r *Runner) maybeRetry() {
	if r.cfg.RetryInterval <= 0 || !r.mgr.Lifecycle().CanRetry(r.cfg.RetryInterval) {
		return
	}
	if err := r.mgr.Resume("auto retry"); err != nil {
		r.log.Warn("Auto retry rejected", zap.Error(err))
	}
}
