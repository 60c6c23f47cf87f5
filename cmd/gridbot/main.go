package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"grid-maker-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/grid.yaml", "配置文件路径")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置文件")
	feedInterval := flag.Duration("feedInterval", 0, "模拟行情推送间隔，覆盖 feed.intervalMs")
	envFile := flag.String("env", ".env", "环境变量文件（GRID_DRY_RUN 等），不存在时忽略")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Fatalf("加载 %s 失败: %v", *envFile, err)
	}

	c, err := container.New(container.Options{
		ConfigPath:   *cfgPath,
		MetricsAddr:  *metricsAddr,
		FeedInterval: *feedInterval,
	})
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}
	lg := c.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		lg.Error("start failed", zap.Error(err))
		os.Exit(1)
	}
	notify(lg.Logger, daemon.SdNotifyReady)

	if interval, err := daemon.SdWatchdogEnabled(false); err == nil && interval > 0 {
		go watchdog(ctx, c, interval/2, lg.Logger)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("shutdown signal received", zap.String("signal", sig.String()))

	notify(lg.Logger, daemon.SdNotifyStopping)
	if err := c.Stop(); err != nil {
		cancel()
		os.Exit(1)
	}
}

// watchdog 健康检查通过时才喂狗，网格进入 ERROR 会由 systemd 重启。
func watchdog(ctx context.Context, c *container.Container, every time.Duration, lg *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := c.HealthCheck(); err != nil {
				lg.Warn("health check failed, skipping watchdog ping", zap.Error(err))
				continue
			}
			notify(lg, daemon.SdNotifyWatchdog)
		}
	}
}

func notify(lg *zap.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		lg.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}
