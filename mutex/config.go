package mutex

import (
	"time"

	"github.com/ceyewan/coord/xerrors"
)

// Driver 后端类型
type Driver string

const (
	DriverRedis Driver = "redis"
	DriverEtcd  Driver = "etcd"
	DriverLocal Driver = "local"
)

// Config 互斥原语的静态配置
//
//	mutex:
//	  driver: redis
//	  prefix: "coord:lock:"
//	  default_ttl: 10s
//	  retry_interval: 100ms
//	  breaker:
//	    enabled: true
//	    timeout: 30s
type Config struct {
	// Driver 选择使用的后端 (redis | etcd | local)
	Driver Driver `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Prefix 锁 Key 的全局前缀，例如 "coord:lock:"
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// DefaultTTL 远端锁的租约时长
	// Redis 由 Watchdog 每 TTL/3 续期一次；Etcd 作为 Session 租约，由 KeepAlive 续期。
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`

	// RetryInterval Redis 加锁轮询间隔
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval" mapstructure:"retry_interval"`

	// Breaker 为空或未启用时不加熔断
	Breaker *BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig 熔断配置，后端连续出错时快速失败
type BreakerConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxRequests 半开状态下允许通过的最大请求数（默认：1）
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`

	// Interval 闭合状态下的统计周期（默认：0，不清空统计）
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Timeout 打开状态持续时间（默认：30s），之后进入半开状态探测
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// FailureRatio 失败率阈值（默认：0.6）
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio"`

	// MinimumRequests 触发熔断的最小请求数（默认：5）
	MinimumRequests uint32 `json:"minimum_requests" yaml:"minimum_requests" mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c.Driver == "" {
		c.Driver = DriverLocal
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverRedis, DriverEtcd, DriverLocal:
	default:
		return xerrors.Wrapf(ErrUnsupportedDriver, "driver %q", c.Driver)
	}
	if c.Driver == DriverEtcd && c.DefaultTTL < time.Second {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "mutex: etcd default_ttl must be at least 1s")
	}
	if c.Breaker != nil {
		if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
			return xerrors.Wrapf(xerrors.ErrInvalidInput, "mutex: breaker failure_ratio must be in [0, 1], got %v", c.Breaker.FailureRatio)
		}
	}
	return nil
}

func (c *BreakerConfig) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 5
	}
}
