package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"grid-maker-go/config"
	"grid-maker-go/infrastructure/logger"
	"grid-maker-go/internal/engine"
	"grid-maker-go/internal/lifecycle"
	"grid-maker-go/order"
	"grid-maker-go/sim"
)

// gridComponent 一个交易对：模拟行情 + Runner。停止时先关闭网格再退出事件循环。
type gridComponent struct {
	symbol   string
	runner   *engine.Runner
	feed     *sim.PriceFeed
	prices   chan float64
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

func (g *gridComponent) Name() string { return "grid:" + g.symbol }

func (g *gridComponent) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil
	}
	if err := g.runner.Start(ctx); err != nil {
		return err
	}
	feedCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	go g.feed.Run(feedCtx, g.interval, g.prices)
	g.started = true
	return nil
}

func (g *gridComponent) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.started {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := g.runner.Do(ctx, func(m *engine.GridManager) {
		if cerr := m.Close("shutdown"); cerr != nil {
			g.logger.Warn("close grid failed", zap.String("symbol", g.symbol), zap.Error(cerr))
		}
	})
	if err != nil && !errors.Is(err, engine.ErrRunnerStopped) {
		g.logger.Warn("close grid command failed", zap.String("symbol", g.symbol), zap.Error(err))
	}
	g.cancel()
	g.started = false
	return g.runner.Stop()
}

func (g *gridComponent) Health() error {
	select {
	case <-g.runner.Done():
		return fmt.Errorf("runner for %s stopped", g.symbol)
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var state lifecycle.State
	var lastErr string
	if err := g.runner.Do(ctx, func(m *engine.GridManager) {
		state = m.State()
		lastErr = m.Lifecycle().LastError()
	}); err != nil {
		return err
	}
	if state == lifecycle.StateError {
		return fmt.Errorf("grid %s in ERROR: %s", g.symbol, lastErr)
	}
	return nil
}

// bookRefresher 定时刷新账户级挂单快照，供各交易对对账共用。
type bookRefresher struct {
	book     *order.Book
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

func (b *bookRefresher) Name() string { return "open_order_book" }

func (b *bookRefresher) Start(ctx context.Context) error {
	if err := b.book.Refresh(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		t := time.NewTicker(b.interval)
		defer t.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-t.C:
				err := b.book.Refresh(runCtx)
				b.mu.Lock()
				b.lastErr = err
				b.mu.Unlock()
				if err != nil && runCtx.Err() == nil {
					b.logger.Warn("open order refresh failed", zap.Error(err))
				}
			}
		}
	}()
	return nil
}

func (b *bookRefresher) Stop() error {
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	<-b.done
	return nil
}

func (b *bookRefresher) Health() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// watcherComponent 配置热更新：新的网格参数在下一次重建时生效。
type watcherComponent struct {
	watcher  *config.Watcher
	onUpdate func(config.AppConfig)
	logger   *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watcherComponent) Name() string { return "config_watcher" }

func (w *watcherComponent) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		if err := w.watcher.Run(runCtx, w.onUpdate); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.LogError(err, map[string]interface{}{"component": w.Name()})
		}
	}()
	return nil
}

func (w *watcherComponent) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

func (w *watcherComponent) Health() error { return nil }
