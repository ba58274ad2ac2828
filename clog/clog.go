// Package clog 为 coord 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，例如 coord.dlock
//   - 支持从 Context 中提取字段（trace_id、request_id 等）
//   - 运行时调整日志级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"},
//	    clog.WithNamespace("coord"),
//	)
//	logger.Info("lock acquired", clog.String("path", "/locks/a"))
package clog

import (
	"fmt"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}

// Default 返回进程级默认 Logger
//
// 未调用 SetDefault 时返回输出到 stderr 的 console Logger。
func Default() Logger {
	if l := defaultLogger.Load(); l != nil {
		return *l
	}
	l, err := New(&Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		return Discard()
	}
	defaultLogger.CompareAndSwap(nil, &l)
	return *defaultLogger.Load()
}

// SetDefault 替换进程级默认 Logger
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultLogger.Store(&l)
}
