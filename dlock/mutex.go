package dlock

import (
	"context"
	"time"
)

// Mutex 被包装的分布式互斥原语
//
// 实现方负责真正的跨进程互斥，并且必须对同一 goroutine 可重入：
// 已持有锁的 goroutine 再次 TryAcquire 应立即成功并累加内部深度，
// 每次 Release 递减一次深度，深度归零时才真正释放。
// mutex 包提供了 Redis、Etcd 与进程内三种实现。
type Mutex interface {
	// TryAcquire 在 timeout 内尝试获取锁
	// 获取成功返回 true, nil；超时返回 false, nil；其他失败返回 error
	TryAcquire(ctx context.Context, timeout time.Duration) (bool, error)

	// Release 释放一次持有
	Release(ctx context.Context) error
}
