package dlock

import "sync/atomic"

// Event 锁生命周期中被计数的事件
type Event int

const (
	EventAcquire Event = iota
	EventAcquireSucceeded
	EventAcquireFailed
	EventAcquireTimedOut
	EventRelease
	EventReleaseFailed

	numEvents
)

// Events 按固定顺序列出全部事件，便于导出时遍历
var Events = [...]Event{
	EventAcquire,
	EventAcquireSucceeded,
	EventAcquireFailed,
	EventAcquireTimedOut,
	EventRelease,
	EventReleaseFailed,
}

func (e Event) String() string {
	switch e {
	case EventAcquire:
		return "acquire"
	case EventAcquireSucceeded:
		return "acquire_succeeded"
	case EventAcquireFailed:
		return "acquire_failed"
	case EventAcquireTimedOut:
		return "acquire_timed_out"
	case EventRelease:
		return "release"
	case EventReleaseFailed:
		return "release_failed"
	default:
		return "unknown"
	}
}

// Counts 六类事件的一组计数
type Counts struct {
	Acquire          int64 `json:"acquire" msgpack:"acquire"`
	AcquireSucceeded int64 `json:"acquire_succeeded" msgpack:"acquire_succeeded"`
	AcquireFailed    int64 `json:"acquire_failed" msgpack:"acquire_failed"`
	AcquireTimedOut  int64 `json:"acquire_timed_out" msgpack:"acquire_timed_out"`
	Release          int64 `json:"release" msgpack:"release"`
	ReleaseFailed    int64 `json:"release_failed" msgpack:"release_failed"`
}

// Get 按事件取值
func (c Counts) Get(e Event) int64 {
	switch e {
	case EventAcquire:
		return c.Acquire
	case EventAcquireSucceeded:
		return c.AcquireSucceeded
	case EventAcquireFailed:
		return c.AcquireFailed
	case EventAcquireTimedOut:
		return c.AcquireTimedOut
	case EventRelease:
		return c.Release
	case EventReleaseFailed:
		return c.ReleaseFailed
	default:
		return 0
	}
}

func (c *Counts) set(e Event, v int64) {
	switch e {
	case EventAcquire:
		c.Acquire = v
	case EventAcquireSucceeded:
		c.AcquireSucceeded = v
	case EventAcquireFailed:
		c.AcquireFailed = v
	case EventAcquireTimedOut:
		c.AcquireTimedOut = v
	case EventRelease:
		c.Release = v
	case EventReleaseFailed:
		c.ReleaseFailed = v
	}
}

// LockMetrics 单个锁路径的计数器
//
// 每个事件有两份计数：cumulative 单调递增从不清零；interval 由 Fetch
// 读取并原子清零，供周期性导出使用。acquiringNow、lockedNow 是实时
// gauge，只随加锁/释放变化，不受 Fetch 影响。
type LockMetrics struct {
	interval   [numEvents]atomic.Int64
	cumulative [numEvents]atomic.Int64

	acquiringNow atomic.Int64
	lockedNow    atomic.Int64
}

func (m *LockMetrics) inc(e Event) {
	m.interval[e].Add(1)
	m.cumulative[e].Add(1)
}

// Fetch 返回事件的 interval 计数并清零
//
// Swap 保证与并发的 inc 之间不丢失也不重复：Swap 之前的增量进入本次
// 返回值，之后的增量留给下一次 Fetch。
func (m *LockMetrics) Fetch(e Event) int64 {
	if e < 0 || e >= numEvents {
		return 0
	}
	return m.interval[e].Swap(0)
}

// FetchAndReset 逐个 Fetch 全部事件
func (m *LockMetrics) FetchAndReset() Counts {
	var c Counts
	for _, e := range Events {
		c.set(e, m.Fetch(e))
	}
	return c
}

// Cumulative 返回事件的累计计数
func (m *LockMetrics) Cumulative(e Event) int64 {
	if e < 0 || e >= numEvents {
		return 0
	}
	return m.cumulative[e].Load()
}

// CumulativeCounts 返回全部事件的累计计数
func (m *LockMetrics) CumulativeCounts() Counts {
	var c Counts
	for _, e := range Events {
		c.set(e, m.Cumulative(e))
	}
	return c
}

// AcquiringNow 正在等待获取的次数
func (m *LockMetrics) AcquiringNow() int64 { return m.acquiringNow.Load() }

// LockedNow 当前持有的次数，重入的每一层都计一次
func (m *LockMetrics) LockedNow() int64 { return m.lockedNow.Load() }

func (m *LockMetrics) acquireStarted() {
	m.inc(EventAcquire)
	m.acquiringNow.Add(1)
}

func (m *LockMetrics) acquireSucceeded() {
	m.inc(EventAcquireSucceeded)
	decrementNonNegative(&m.acquiringNow)
	m.lockedNow.Add(1)
}

func (m *LockMetrics) acquireFailed() {
	m.inc(EventAcquireFailed)
	decrementNonNegative(&m.acquiringNow)
}

func (m *LockMetrics) acquireTimedOut() {
	m.inc(EventAcquireTimedOut)
	decrementNonNegative(&m.acquiringNow)
}

// released 释放总要计一次 release；失败时额外计 release_failed。
// 无论成败 lockedNow 都要减一，本层视角下锁已经释放。
func (m *LockMetrics) released(failed bool) {
	m.inc(EventRelease)
	if failed {
		m.inc(EventReleaseFailed)
	}
	decrementNonNegative(&m.lockedNow)
}

// decrementNonNegative gauge 永不为负
func decrementNonNegative(v *atomic.Int64) {
	for {
		cur := v.Load()
		if cur <= 0 {
			return
		}
		if v.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}
