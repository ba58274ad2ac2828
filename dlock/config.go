package dlock

import (
	"time"

	"github.com/ceyewan/coord/xerrors"
)

// Config 锁统计的静态配置
//
// 典型配置（YAML）：
//
//	dlock:
//	  slow_threshold: 1s
//	  max_samples: 100
//	  report_interval: 30s
//	  slow_log_rate: 1
type Config struct {
	// SlowThreshold 加锁耗时达到该值即视为慢加锁，成功的慢加锁也会进入采样
	SlowThreshold time.Duration `json:"slow_threshold" yaml:"slow_threshold" mapstructure:"slow_threshold"`

	// MaxSamples 采样缓冲区容量，满了之后淘汰最旧的一条
	MaxSamples int `json:"max_samples" yaml:"max_samples" mapstructure:"max_samples"`

	// ReportInterval Reporter 导出 interval 计数的周期
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval" mapstructure:"report_interval"`

	// SlowLogRate 每秒最多输出多少条慢加锁/失败告警日志
	SlowLogRate float64 `json:"slow_log_rate" yaml:"slow_log_rate" mapstructure:"slow_log_rate"`
}

// DefaultConfig 返回填好默认值的配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.SlowThreshold == 0 {
		c.SlowThreshold = time.Second
	}
	if c.MaxSamples == 0 {
		c.MaxSamples = 100
	}
	if c.ReportInterval == 0 {
		c.ReportInterval = 30 * time.Second
	}
	if c.SlowLogRate == 0 {
		c.SlowLogRate = 1
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.SlowThreshold < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: slow_threshold must not be negative")
	}
	if c.MaxSamples < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: max_samples must not be negative")
	}
	if c.ReportInterval < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: report_interval must not be negative")
	}
	if c.SlowLogRate < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: slow_log_rate must not be negative")
	}
	return nil
}
