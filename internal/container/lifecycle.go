package container

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"grid-maker-go/infrastructure/logger"
)

// Component 容器托管的长生命周期组件。
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type slot struct {
	c       Component
	running bool
}

// Supervisor 按注册顺序启动组件，逆序停止。只停止已经启动成功的组件。
type Supervisor struct {
	mu    sync.Mutex
	log   *logger.Logger
	slots []*slot
}

func NewSupervisor(log *logger.Logger) *Supervisor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Supervisor{log: log}
}

func (s *Supervisor) Add(c Component) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, &slot{c: c})
}

// Start 任一组件启动失败时停掉本轮已启动的组件并返回该错误。
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sl := range s.slots {
		if sl.running {
			continue
		}
		if err := sl.c.Start(ctx); err != nil {
			if rerr := s.stopLocked(); rerr != nil {
				s.log.Warn("rollback incomplete", zap.Error(rerr))
			}
			return fmt.Errorf("component %s: %w", sl.c.Name(), err)
		}
		sl.running = true
		s.log.Debug("component started", zap.String("component", sl.c.Name()))
	}
	return nil
}

// Stop 返回所有停止失败的组合错误。
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Supervisor) stopLocked() error {
	var errs error
	for i := len(s.slots) - 1; i >= 0; i-- {
		sl := s.slots[i]
		if !sl.running {
			continue
		}
		sl.running = false
		if err := sl.c.Stop(); err != nil {
			s.log.LogError(err, map[string]interface{}{"component": sl.c.Name(), "action": "stop"})
			errs = multierr.Append(errs, fmt.Errorf("stop %s: %w", sl.c.Name(), err))
		}
	}
	return errs
}

// Health 汇总所有不健康组件。
func (s *Supervisor) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs error
	for _, sl := range s.slots {
		if err := sl.c.Health(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sl.c.Name(), err))
		}
	}
	return errs
}

func (s *Supervisor) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.slots))
	for i, sl := range s.slots {
		out[i] = sl.c.Name()
	}
	return out
}

// adminServer 管理端 HTTP 服务。Start 同步绑定端口，占用时直接失败。
type adminServer struct {
	addr    string
	handler http.Handler
	log     *logger.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func (a *adminServer) Name() string { return "admin_server" }

func (a *adminServer) Start(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv != nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: a.handler, ReadHeaderTimeout: 5 * time.Second}
	a.srv, a.ln = srv, ln
	a.log.Info("admin server listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.log.LogError(err, map[string]interface{}{"component": "admin_server", "action": "serve"})
		}
	}()
	return nil
}

func (a *adminServer) Stop() error {
	a.mu.Lock()
	srv := a.srv
	a.srv, a.ln = nil, nil
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (a *adminServer) Health() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.srv == nil {
		return fmt.Errorf("not listening")
	}
	return nil
}

// Addr 实际监听地址，未启动时为空。
func (a *adminServer) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return ""
	}
	return a.ln.Addr().String()
}
