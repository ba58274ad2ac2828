package dlock

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/internal/goid"
	"github.com/ceyewan/coord/xerrors"
)

const tracerName = "github.com/ceyewan/coord/dlock"

// Lock 对分布式互斥原语的可观测包装
//
// 每次 Acquire/Release 都会更新所属 Stats 中该路径的计数、当前 goroutine
// 的加锁栈以及采样缓冲区。持有者以 goroutine 为单位，Acquire 与对应的
// Release 必须在同一个 goroutine 上调用，嵌套的多把锁按 LIFO 顺序释放。
//
// 基本用法：
//
//	lock, _ := dlock.New("/config/app", mu)
//	guard, err := lock.Acquire(ctx, 5*time.Second)
//	if err != nil {
//		return err
//	}
//	defer guard.Release()
type Lock struct {
	path   string
	mutex  Mutex
	stats  *Stats
	logger clog.Logger
	tracer trace.Tracer

	// held 按 goroutine 记录经由本锁获得且尚未释放的持有，与 Stats 独立，
	// 统计被清空后依然能释放底层原语
	mu   sync.Mutex
	held map[int64][]*holding
}

// holding 一次成功获取，thread 为获取时所在的加锁栈
type holding struct {
	a      *attempt
	thread *ThreadLockStats
}

// New 为 path 创建锁，mutex 必须对同一 goroutine 可重入
func New(path string, mutex Mutex, opts ...Option) (*Lock, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}
	if mutex == nil {
		return nil, ErrMutexNil
	}

	o := applyOptions(opts...)
	stats := o.stats
	if stats == nil {
		stats = Global()
	}
	return &Lock{
		path:   path,
		mutex:  mutex,
		stats:  stats,
		logger: o.logger.With(clog.String("path", path)),
		tracer: o.tracerProvider.Tracer(tracerName),
		held:   make(map[int64][]*holding),
	}, nil
}

// Path 锁路径
func (l *Lock) Path() string {
	return l.path
}

// Stats 该锁上报的注册表
func (l *Lock) Stats() *Stats {
	return l.stats
}

// Acquire 在 timeout 内获取锁
//
// 同一 goroutine 可以重复获取，每次成功都需要一次对应的释放。
// 超时返回 *TimeoutError，底层出错返回 *AcquireError。
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (*Guard, error) {
	gid := goid.Get()
	a := newAttempt(l.path, gid, timeout, l.stats.now())

	ctx, span := l.tracer.Start(ctx, "dlock.Acquire", trace.WithAttributes(
		attribute.String("dlock.path", l.path),
		attribute.Int64("dlock.timeout_ms", timeout.Milliseconds()),
		attribute.Int64("dlock.goroutine", gid),
	))
	defer span.End()

	thread := l.stats.threadStats(gid)
	metrics := l.stats.MetricsFor(l.path)
	thread.push(a)
	metrics.acquireStarted()

	ok, err := l.tryAcquire(ctx, timeout, func() {
		l.acquireFailed(a, thread, metrics)
	})

	switch {
	case err != nil:
		l.acquireFailed(a, thread, metrics)
		l.logger.ErrorContext(ctx, "failed to acquire lock",
			clog.Duration("timeout", timeout), clog.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire failed")
		return nil, &AcquireError{Path: l.path, Timeout: timeout, Cause: err}

	case !ok:
		a.transition(StateAcquireTimedOut, l.stats.now())
		thread.remove(a)
		metrics.acquireTimedOut()
		l.stats.maybeRecordSample(a)
		terr := &TimeoutError{Path: l.path, Timeout: timeout}
		span.SetStatus(codes.Error, terr.Error())
		return nil, terr
	}

	a.transition(StateAcquired, l.stats.now())
	metrics.acquireSucceeded()
	l.stats.maybeRecordSample(a)
	span.SetAttributes(attribute.Int("dlock.depth", thread.Depth()))
	l.logger.DebugContext(ctx, "lock acquired",
		clog.Duration("elapsed", a.snapshot().AcquireDuration(l.stats.now())))

	h := &holding{a: a, thread: thread}
	l.hold(gid, h)
	return &Guard{lock: l, h: h}, nil
}

func (l *Lock) hold(gid int64, h *holding) {
	l.mu.Lock()
	l.held[gid] = append(l.held[gid], h)
	l.mu.Unlock()
}

// unhold 移除并返回指定持有，h 为 nil 时取该 goroutine 最近的一次
func (l *Lock) unhold(gid int64, h *holding) *holding {
	l.mu.Lock()
	defer l.mu.Unlock()

	hs := l.held[gid]
	for i := len(hs) - 1; i >= 0; i-- {
		if h != nil && hs[i] != h {
			continue
		}
		found := hs[i]
		hs = append(hs[:i], hs[i+1:]...)
		if len(hs) == 0 {
			delete(l.held, gid)
		} else {
			l.held[gid] = hs
		}
		return found
	}
	return nil
}

func (l *Lock) acquireFailed(a *attempt, thread *ThreadLockStats, metrics *LockMetrics) {
	a.transition(StateAcquireFailed, l.stats.now())
	thread.remove(a)
	metrics.acquireFailed()
	l.stats.maybeRecordSample(a)
}

// tryAcquire 底层 panic 时先完成记账再继续 panic
func (l *Lock) tryAcquire(ctx context.Context, timeout time.Duration, onPanic func()) (bool, error) {
	defer func() {
		if r := recover(); r != nil {
			onPanic()
			panic(r)
		}
	}()
	return l.mutex.TryAcquire(ctx, timeout)
}

// Release 释放当前 goroutine 经由本锁获得的最近一层持有
//
// 当前 goroutine 未持有时返回 ErrLockNotHeld 且不计数。底层释放出错时
// 返回 *ReleaseError，但本层的计数与加锁栈照常更新。
func (l *Lock) Release(ctx context.Context) error {
	h := l.unhold(goid.Get(), nil)
	if h == nil {
		return xerrors.Wrapf(ErrLockNotHeld, "release %s", l.path)
	}
	return l.releaseHolding(ctx, h)
}

// releaseHolding 总是释放底层原语；加锁栈已被清空时只跳过记账
func (l *Lock) releaseHolding(ctx context.Context, h *holding) error {
	gid := h.a.goroutineID
	ctx, span := l.tracer.Start(ctx, "dlock.Release", trace.WithAttributes(
		attribute.String("dlock.path", l.path),
		attribute.Int64("dlock.goroutine", gid),
	))
	defer span.End()

	var metrics *LockMetrics
	if cur, ok := l.stats.lookupThreadStats(gid); ok && cur == h.thread {
		if found, top := h.thread.remove(h.a); found {
			metrics = l.stats.MetricsFor(l.path)
			if !top {
				l.logger.ErrorContext(ctx, "lock released out of nesting order",
					clog.Int64("goroutine", gid),
					clog.Int("depth", h.thread.Depth()))
			}
		}
	}
	if metrics == nil {
		l.logger.WarnContext(ctx, "lock stats missing, releasing without bookkeeping",
			clog.Int64("goroutine", gid))
	}

	err := l.release(ctx, func() {
		l.released(h.a, metrics, true)
	})
	l.released(h.a, metrics, err != nil)

	if err != nil {
		l.logger.ErrorContext(ctx, "failed to release lock", clog.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return &ReleaseError{Path: l.path, Cause: err}
	}
	l.logger.DebugContext(ctx, "lock released")
	return nil
}

// Close 等价于 Release(context.Background())
func (l *Lock) Close() error {
	return l.Release(context.Background())
}

func (l *Lock) released(a *attempt, metrics *LockMetrics, failed bool) {
	next := StateReleased
	if failed {
		next = StateReleaseFailed
	}
	a.transition(next, l.stats.now())
	if metrics != nil {
		metrics.released(failed)
	}
}

func (l *Lock) release(ctx context.Context, onPanic func()) error {
	defer func() {
		if r := recover(); r != nil {
			onPanic()
			panic(r)
		}
	}()
	return l.mutex.Release(ctx)
}

// Do 持有锁执行 fn，任何退出路径都会释放锁
//
// fn 的错误与释放错误会合并返回。
func (l *Lock) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) (err error) {
	guard, err := l.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	defer func() {
		err = xerrors.Combine(err, guard.ReleaseContext(ctx))
	}()
	return fn(ctx)
}

// Guard 一次成功获取的凭证，Release 只有第一次调用生效
//
// 必须在获取锁的那个 goroutine 上释放。
type Guard struct {
	lock *Lock
	h    *holding
	once sync.Once
	err  error
}

// Path 锁路径
func (g *Guard) Path() string {
	return g.lock.path
}

// Release 释放锁，适合 defer guard.Release()
func (g *Guard) Release() error {
	return g.ReleaseContext(context.Background())
}

// ReleaseContext 与 Release 相同，ctx 传给底层原语
//
// 即使统计已被清空也会释放底层原语。这一层持有已经通过 Lock.Release
// 释放过时返回 ErrLockNotHeld。
func (g *Guard) ReleaseContext(ctx context.Context) error {
	if gid := goid.Get(); gid != g.h.a.goroutineID {
		return xerrors.Wrapf(ErrLockNotHeld, "release %s from goroutine %d", g.lock.path, gid)
	}
	g.once.Do(func() {
		h := g.lock.unhold(g.h.a.goroutineID, g.h)
		if h == nil {
			g.err = xerrors.Wrapf(ErrLockNotHeld, "release %s", g.lock.path)
			return
		}
		g.err = g.lock.releaseHolding(ctx, h)
	})
	return g.err
}
