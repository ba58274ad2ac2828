// Package mutex 提供可供 dlock 包装的分布式互斥原语。
//
// 所有实现对同一 goroutine 可重入：持有锁的 goroutine 再次 TryAcquire
// 立即成功并累加深度，每次 Release 递减一层，深度归零时才释放远端锁。
// 同一个 Mutex 实例上，不同 goroutine 之间先在进程内互斥，再竞争远端锁。
//
// 后端：
//   - Redis：SET NX PX 加锁，Watchdog 续期，Lua 脚本校验 token 后删除
//   - Etcd：concurrency.Session + concurrency.Mutex，Session 租约自动续期
//   - Local：纯进程内实现，用于测试与单机部署
//
// 基本使用：
//
//	provider, err := mutex.New(&mutex.Config{
//		Driver: mutex.DriverRedis,
//		Prefix: "coord:lock:",
//	}, mutex.WithRedisConnector(redisConn), mutex.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer provider.Close()
//
//	mu, err := provider.Mutex("/orders/42")
//	ok, err := mu.TryAcquire(ctx, 3*time.Second)
package mutex

import (
	"context"
	"time"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/xerrors"
)

// Mutex 可重入的分布式互斥原语
type Mutex interface {
	// TryAcquire 在 timeout 内获取锁
	// 获取成功返回 true, nil；超时返回 false, nil；
	// ctx 取消返回 ctx.Err()；其他失败返回 error
	TryAcquire(ctx context.Context, timeout time.Duration) (bool, error)

	// Release 释放一层持有，非持有者调用返回 ErrNotOwner
	Release(ctx context.Context) error
}

// Holder 能判断当前 goroutine 是否已持有的 Mutex，内置实现都满足
type Holder interface {
	HeldByCurrent() bool
}

// Provider 按路径创建 Mutex，并管理后端资源
type Provider interface {
	// Mutex 返回 path 对应的互斥原语
	// 同一个 Provider 对同一路径多次调用返回同一个实例
	Mutex(path string) (Mutex, error)

	// Close 释放 Provider 创建的后端资源（如 Etcd Session），不关闭连接器
	Close() error
}

// New 根据 Driver 创建 Provider
func New(cfg *Config, opts ...Option) (Provider, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)
	var p Provider
	switch c.Driver {
	case DriverRedis:
		if o.redisConnector == nil {
			return nil, xerrors.Wrapf(ErrConnectorNil, "driver %s", c.Driver)
		}
		p = newRedisProvider(o.redisConnector.GetClient(), &c, o.logger)
	case DriverEtcd:
		if o.etcdConnector == nil {
			return nil, xerrors.Wrapf(ErrConnectorNil, "driver %s", c.Driver)
		}
		p = newEtcdProvider(o.etcdConnector.GetClient(), &c, o.logger)
	case DriverLocal:
		p = o.localGroup
	}

	if c.Breaker != nil && c.Breaker.Enabled {
		p = &breakerProvider{inner: p, breaker: newBreaker(string(c.Driver), *c.Breaker, o)}
	}

	o.logger.Info("mutex provider created",
		clog.String("driver", string(c.Driver)), clog.String("prefix", c.Prefix))
	return p, nil
}
