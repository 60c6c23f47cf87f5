package order

import (
	"errors"
	"fmt"
)

// TransportError 下单/撤单/拉取快照失败。可恢复，由上层转入 ERROR 生命周期。
type TransportError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// WrapTransport 包装为 TransportError；已是 TransportError 时原样返回。
func WrapTransport(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Symbol: symbol, Err: err}
}

// IsTransport 判断错误链中是否有 TransportError。
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
