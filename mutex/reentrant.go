package mutex

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/coord/internal/goid"
)

// backend 不可重入的远端锁，同一时刻只会被一个 goroutine 调用
type backend interface {
	// lock 在 timeout 内获取远端锁，超时返回 false, nil
	lock(ctx context.Context, timeout time.Duration) (bool, error)
	unlock(ctx context.Context) error
}

// reentrant 所有后端共用的可重入外壳
//
// sem 是容量为 1 的信号量，保证同一实例上同时只有一个 goroutine 持有或
// 竞争远端锁；owner/depth 记录持有者与重入深度。backend 为 nil 时
// 仅做进程内互斥。
type reentrant struct {
	path    string
	sem     chan struct{}
	backend backend

	mu    sync.Mutex
	owner int64
	depth int
}

func newReentrant(path string, b backend) *reentrant {
	return &reentrant{
		path:    path,
		sem:     make(chan struct{}, 1),
		backend: b,
	}
}

// Path 锁路径
func (r *reentrant) Path() string {
	return r.path
}

// HeldByCurrent 当前 goroutine 是否持有该锁
func (r *reentrant) HeldByCurrent() bool {
	gid := goid.Get()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth > 0 && r.owner == gid
}

// Depth 当前重入深度，未被持有时为 0
func (r *reentrant) Depth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth
}

func (r *reentrant) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	gid := goid.Get()

	r.mu.Lock()
	if r.depth > 0 && r.owner == gid {
		r.depth++
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()

	if timeout < 0 {
		timeout = 0
	}
	deadline := time.Now().Add(timeout)

	ok, err := r.enter(ctx, timeout)
	if !ok || err != nil {
		return false, err
	}

	if r.backend != nil {
		// 进程内等待已经消耗了一部分超时时间
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		ok, err := r.backend.lock(ctx, remaining)
		if !ok || err != nil {
			<-r.sem
			return false, err
		}
	}

	r.mu.Lock()
	r.owner = gid
	r.depth = 1
	r.mu.Unlock()
	return true, nil
}

// enter 获取进程内信号量
func (r *reentrant) enter(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	select {
	case r.sem <- struct{}{}:
		return true, nil
	default:
	}
	if timeout == 0 {
		return false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r.sem <- struct{}{}:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (r *reentrant) Release(ctx context.Context) error {
	gid := goid.Get()

	r.mu.Lock()
	if r.depth == 0 || r.owner != gid {
		r.mu.Unlock()
		return ErrNotOwner
	}
	r.depth--
	if r.depth > 0 {
		r.mu.Unlock()
		return nil
	}
	r.owner = 0
	r.mu.Unlock()

	// 远端释放失败也要让出进程内信号量，否则本实例永久不可用
	defer func() { <-r.sem }()
	if r.backend == nil {
		return nil
	}
	return r.backend.unlock(ctx)
}
