package logger

import (
	"go.uber.org/zap"
)

// Publisher 带严重级别的日志发布器
//
// 进程启动时通过 StartLogging 创建一次，随后以依赖注入的方式
// 传递给各个组件，不使用全局单例。
type Publisher struct {
	logger *zap.Logger
}

// NewPublisher 包装一个已有的 zap.Logger
func NewPublisher(logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

// Nop 返回不输出任何内容的发布器
func Nop() *Publisher {
	return NewPublisher(zap.NewNop())
}

// StartLogging 按配置初始化日志观察者并返回发布器
//
// 最多一个文件观察者（配置了日志文件时）加一个控制台观察者，
// 控制台观察者的阈值取自配置。文件句柄在进程生命周期内保持打开。
func StartLogging(cfg Config) (*Publisher, error) {
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return NewPublisher(logger), nil
}

// Debug 以 debug 级别发布消息
func (p *Publisher) Debug(msg string, fields ...zap.Field) {
	p.logger.Debug(msg, fields...)
}

// Info 以 info 级别发布消息
func (p *Publisher) Info(msg string, fields ...zap.Field) {
	p.logger.Info(msg, fields...)
}

// Err 以 error 级别发布错误，并附带调用栈
func (p *Publisher) Err(err error, msg string, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.Stack("traceback"))
	p.logger.Error(msg, fields...)
}

// Named 返回带子名称的发布器
func (p *Publisher) Named(name string) *Publisher {
	return &Publisher{logger: p.logger.Named(name)}
}

// Logger 返回底层 zap.Logger（不含调用者跳过）
func (p *Publisher) Logger() *zap.Logger {
	return p.logger.WithOptions(zap.AddCallerSkip(-1))
}

// Sync 刷新缓冲区
func (p *Publisher) Sync() error {
	return p.logger.Sync()
}
