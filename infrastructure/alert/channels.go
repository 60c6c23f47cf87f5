package alert

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"grid-maker-go/infrastructure/logger"
)

// LogChannel 把告警写入结构化日志
type LogChannel struct {
	name string
	log  *logger.Logger
}

func NewLogChannel(name string, l *logger.Logger) *LogChannel {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogChannel{name: name, log: l}
}

func (c *LogChannel) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("level", string(a.Level)),
		zap.String("symbol", a.Symbol),
		zap.Time("alert_ts", a.Timestamp),
	}
	for _, k := range sortedKeys(a.Fields) {
		fields = append(fields, zap.Any(k, a.Fields[k]))
	}
	switch a.Level {
	case LevelCritical, LevelError:
		c.log.Error("alert: "+a.Message, fields...)
	case LevelWarning:
		c.log.Warn("alert: "+a.Message, fields...)
	default:
		c.log.Info("alert: "+a.Message, fields...)
	}
	return nil
}

func (c *LogChannel) Name() string { return c.name }

// ConsoleChannel 彩色文本输出
type ConsoleChannel struct {
	name string
	out  io.Writer
}

func NewConsoleChannel(name string, out io.Writer) *ConsoleChannel {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleChannel{name: name, out: out}
}

var levelColors = map[Level]string{
	LevelInfo:     "\033[32m",
	LevelWarning:  "\033[33m",
	LevelError:    "\033[31m",
	LevelCritical: "\033[35m",
}

func (c *ConsoleChannel) Send(a Alert) error {
	const reset = "\033[0m"
	color, ok := levelColors[a.Level]
	if !ok {
		color = reset
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]%s %s %s - %s",
		color, a.Level, reset, a.Timestamp.Format("2006-01-02 15:04:05"), a.Symbol, a.Message)
	if len(a.Fields) > 0 {
		b.WriteString(" |")
		for _, k := range sortedKeys(a.Fields) {
			fmt.Fprintf(&b, " %s=%v", k, a.Fields[k])
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(c.out, b.String())
	return err
}

func (c *ConsoleChannel) Name() string { return c.name }

// MemoryChannel 把告警保存在内存，测试和诊断用。
type MemoryChannel struct {
	mu     sync.Mutex
	name   string
	alerts []Alert
	err    error
}

func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Send(a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *MemoryChannel) Name() string { return c.name }

// FailWith 之后的 Send 都返回 err；nil 恢复正常。
func (c *MemoryChannel) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *MemoryChannel) Alerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
