package diag

import (
	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/metrics"
)

// Option 诊断服务选项
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Default().WithNamespace("diag")
	}
	return o
}

// WithLogger 注入日志记录器，组件会自动追加 diag 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("diag")
		}
	}
}

// WithMeter 记录诊断接口自身的 HTTP 请求指标
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}
