package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 封装 zap，附带网格事件的结构化日志方法。
type Logger struct {
	*zap.Logger
	config Config
}

// Config 日志配置，对应 YAML 的 logging 段。
type Config struct {
	Level      string   `yaml:"level"`       // debug, info, warn, error
	Outputs    []string `yaml:"outputs"`     // stdout, file
	OutputFile string   `yaml:"output_file"` // 日志文件路径
	ErrorFile  string   `yaml:"error_file"`  // 错误日志单独文件
	Format     string   `yaml:"format"`      // json 或 console
	MaxSize    int      `yaml:"max_size"`    // 单个日志文件最大MB
	MaxBackups int      `yaml:"max_backups"` // 保留的旧日志文件数
	MaxAge     int      `yaml:"max_age"`     // 保留天数
}

func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Outputs:    []string{"stdout"},
		Format:     "json",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// New 按配置组装 zap core；文件输出经 lumberjack 滚动。
func New(cfg Config) (*Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	console := strings.EqualFold(cfg.Format, "console")
	if console {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var cores []zapcore.Core
	if contains(cfg.Outputs, "stdout") {
		enc := zapcore.NewJSONEncoder(encCfg)
		if console {
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level))
	}
	// 文件一律 JSON，颜色码不落盘
	fileEnc := zap.NewProductionEncoderConfig()
	fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
	if contains(cfg.Outputs, "file") && cfg.OutputFile != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEnc),
			zapcore.AddSync(cfg.rotator(cfg.OutputFile)),
			level,
		))
	}
	if cfg.ErrorFile != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEnc),
			zapcore.AddSync(cfg.rotator(cfg.ErrorFile)),
			zapcore.ErrorLevel,
		))
	}
	if len(cores) == 0 {
		return nil, fmt.Errorf("no log output configured (outputs=%v)", cfg.Outputs)
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: zl, config: cfg}, nil
}

func (c Config) rotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   true,
	}
}

// NewNop 丢弃所有输出，测试用。
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), config: DefaultConfig()}
}

// FromZap 包装已有 zap.Logger（例如 zaptest 的 observer）。
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{Logger: zl, config: DefaultConfig()}
}

// Named 按组件命名子日志器。
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name), config: l.config}
}

// WithFields 添加字段返回新的 logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(toZap(fields)...), config: l.config}
}

// LogGrid 网格生命周期、重建、对账事件。
func (l *Logger) LogGrid(event string, fields map[string]interface{}) {
	l.Info("grid_event", append(toZap(fields), zap.String("event", event))...)
}

// LogOrder 下单/撤单/成交事件。
func (l *Logger) LogOrder(event, orderID string, fields map[string]interface{}) {
	zf := append(toZap(fields), zap.String("event", event), zap.String("order_id", orderID))
	l.Info("order_event", zf...)
}

// LogError 记录错误并附带上下文
func (l *Logger) LogError(err error, ctx map[string]interface{}) {
	l.Error("error_event", append(toZap(ctx), zap.Error(err))...)
}

// LogRisk 风险提示（例如推断成交、孤儿订单）。
func (l *Logger) LogRisk(event string, fields map[string]interface{}) {
	l.Warn("risk_event", append(toZap(fields), zap.String("event", event))...)
}

func (l *Logger) Close() error {
	err := l.Sync()
	// stdout 在部分平台上 Sync 会返回 EINVAL
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		return nil
	}
	return err
}

func toZap(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+2)
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
