package strategy

import "fmt"

// ConfigError 业务层面的配置组合非法（类型合法但无法构建网格）。
// 属于构造期前置条件，不在本层恢复。
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid grid config: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...interface{}) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
