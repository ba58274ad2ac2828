package dlock

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/coord/clog"
)

// Option dlock 组件的选项函数，New 与 NewStats 共用
type Option func(*options)

type options struct {
	logger         clog.Logger
	stats          *Stats
	tracerProvider trace.TracerProvider
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Default().WithNamespace("dlock")
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}

// WithLogger 注入日志记录器，组件会自动追加 dlock 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("dlock")
		}
	}
}

// WithStats 指定统计注册表，默认使用进程级 Global()
func WithStats(s *Stats) Option {
	return func(o *options) {
		if s != nil {
			o.stats = s
		}
	}
}

// WithTracerProvider 指定 TracerProvider，默认使用 otel 全局 Provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}
