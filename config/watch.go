package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"grid-maker-go/infrastructure/logger"
)

// DefaultCooldown 两次重载之间的最小间隔，合并编辑器的连续写事件。
const DefaultCooldown = 2 * time.Second

// Watcher 用 fsnotify 监听配置文件，变更后重新加载并校验，合法时回调。
// 监听所在目录而不是文件本身，兼容“写临时文件再 rename”的编辑器。
type Watcher struct {
	path     string
	cooldown time.Duration
	load     func(string) (AppConfig, error)
	log      *logger.Logger

	mu         sync.Mutex
	lastReload time.Time
	reloads    int
	failures   int
}

func NewWatcher(path string, cooldown time.Duration, log *logger.Logger) *Watcher {
	if cooldown < 0 {
		cooldown = DefaultCooldown
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Watcher{
		path:     path,
		cooldown: cooldown,
		load:     LoadWithEnvOverrides,
		log:      log,
	}
}

// Run 阻塞直到 ctx 结束。onUpdate 只会收到通过校验的配置。
func (w *Watcher) Run(ctx context.Context, onUpdate func(AppConfig)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.reload(onUpdate)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig)) {
	w.mu.Lock()
	if !w.lastReload.IsZero() && time.Since(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := w.load(w.path)
	if err != nil {
		w.mu.Lock()
		w.failures++
		w.mu.Unlock()
		w.log.Error("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
	w.log.Info("config reloaded", zap.String("path", w.path), zap.Int("symbols", len(cfg.Symbols)))
	if onUpdate != nil {
		onUpdate(cfg)
	}
}

// Stats 返回成功/失败的重载次数。
func (w *Watcher) Stats() (reloads, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.failures
}
