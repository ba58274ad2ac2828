package mutex

import (
	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/connector"
	"github.com/ceyewan/coord/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	redisConnector connector.RedisConnector
	etcdConnector  connector.EtcdConnector
	localGroup     *LocalGroup
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Default().WithNamespace("mutex")
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	if o.localGroup == nil {
		o.localGroup = NewLocalGroup()
	}
	return o
}

// WithLogger 注入日志记录器，组件会自动追加 mutex 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("mutex")
		}
	}
}

// WithMeter 注入指标，用于记录熔断器状态变化
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithRedisConnector 注入 Redis 连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConnector = conn
		}
	}
}

// WithEtcdConnector 注入 Etcd 连接器
func WithEtcdConnector(conn connector.EtcdConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.etcdConnector = conn
		}
	}
}

// WithLocalGroup 指定 local 后端使用的 LocalGroup，便于多个 Provider 共享
func WithLocalGroup(g *LocalGroup) Option {
	return func(o *options) {
		if g != nil {
			o.localGroup = g
		}
	}
}
