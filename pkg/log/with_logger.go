package log

import "go.uber.org/atomic"

var (
	_ WithLogger   = &Binder{}
	_ LoggerBinder = &Binder{}
)

// WithLogger 由持有组件级 Logger 的类型实现。
type WithLogger interface {
	Logger() *MLogger
}

// LoggerBinder 由允许外部注入 Logger 的类型实现。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

// Binder 可嵌入到组件中（例如 framer 的读写端、批量转码器），统一管理组件 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 将 Logger 绑定到 Binder 上。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回绑定的 Logger，尚未绑定时退回到全局 Logger。
func (w *Binder) Logger() *MLogger {
	l := w.logger.Load()
	if l == nil {
		return With()
	}
	return l
}
