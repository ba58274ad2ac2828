package dlock

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/coord/clog"
)

// Stats 进程级的锁统计注册表
//
// 包含三部分：路径到 LockMetrics 的映射、goroutine 到 ThreadLockStats
// 的映射、以及有界的采样缓冲区。两个映射都用 sync.Map，计数器是原子量，
// 采样缓冲区有独立的互斥锁，不同路径、不同 goroutine 的更新互不竞争。
// 映射中的条目只增不删，直到 Clear。
type Stats struct {
	cfg    atomic.Pointer[Config]
	logger clog.Logger
	now    func() time.Time

	slowLog *rate.Limiter

	metrics sync.Map // map[string]*LockMetrics
	threads sync.Map // map[int64]*ThreadLockStats

	samplesMu sync.Mutex
	samples   []LockAttempt

	// changed 每次 UpdateConfig 关闭当前 channel 并换上新的
	changedMu sync.Mutex
	changed   chan struct{}
}

var (
	globalOnce  sync.Once
	globalStats *Stats
)

// Global 返回进程级注册表，首次调用时以默认配置创建
func Global() *Stats {
	globalOnce.Do(func() {
		s, err := NewStats(DefaultConfig())
		if err != nil {
			panic(err)
		}
		globalStats = s
	})
	return globalStats
}

// ClearForTesting 清空进程级注册表，仅供测试使用
func ClearForTesting() {
	Global().Clear()
}

// NewStats 创建独立的注册表，cfg 为 nil 时使用默认配置
func NewStats(cfg *Config, opts ...Option) (*Stats, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts...)
	s := &Stats{
		logger:  o.logger,
		now:     time.Now,
		slowLog: rate.NewLimiter(rate.Limit(c.SlowLogRate), slowLogBurst(c.SlowLogRate)),
		changed: make(chan struct{}),
	}
	s.cfg.Store(&c)
	return s, nil
}

func slowLogBurst(r float64) int {
	if r < 1 {
		return 1
	}
	return int(r)
}

// Config 返回当前配置的副本
func (s *Stats) Config() Config {
	return *s.cfg.Load()
}

// UpdateConfig 运行时更新配置
//
// MaxSamples 变小时保留最新的样本。
func (s *Stats) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return err
	}
	s.cfg.Store(&c)
	s.slowLog.SetLimit(rate.Limit(c.SlowLogRate))
	s.slowLog.SetBurst(slowLogBurst(c.SlowLogRate))

	s.samplesMu.Lock()
	if over := len(s.samples) - c.MaxSamples; over > 0 {
		s.samples = append(s.samples[:0], s.samples[over:]...)
	}
	s.samplesMu.Unlock()

	s.changedMu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.changedMu.Unlock()

	s.logger.Info("lock stats config updated",
		clog.Duration("slow_threshold", c.SlowThreshold),
		clog.Int("max_samples", c.MaxSamples))
	return nil
}

// configChanged 返回在下一次 UpdateConfig 时关闭的 channel
func (s *Stats) configChanged() <-chan struct{} {
	s.changedMu.Lock()
	defer s.changedMu.Unlock()
	return s.changed
}

// MetricsFor 获取或创建路径对应的 LockMetrics
func (s *Stats) MetricsFor(path string) *LockMetrics {
	if m, ok := s.metrics.Load(path); ok {
		return m.(*LockMetrics)
	}
	m, _ := s.metrics.LoadOrStore(path, &LockMetrics{})
	return m.(*LockMetrics)
}

// LockMetricsByPath 返回路径到 LockMetrics 的映射副本
//
// 映射本身是新分配的，值仍是实时计数器，调用方可以对其 Fetch。
func (s *Stats) LockMetricsByPath() map[string]*LockMetrics {
	out := make(map[string]*LockMetrics)
	s.metrics.Range(func(k, v any) bool {
		out[k.(string)] = v.(*LockMetrics)
		return true
	})
	return out
}

// ThreadLockStats 返回所有出现过的 goroutine 的加锁栈，按 goroutine id 升序
func (s *Stats) ThreadLockStats() []*ThreadLockStats {
	var out []*ThreadLockStats
	s.threads.Range(func(_, v any) bool {
		out = append(out, v.(*ThreadLockStats))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].goroutineID < out[j].goroutineID })
	return out
}

// LockAttemptSamples 返回采样缓冲区的副本，最旧的在前
func (s *Stats) LockAttemptSamples() []LockAttempt {
	s.samplesMu.Lock()
	defer s.samplesMu.Unlock()
	return append([]LockAttempt(nil), s.samples...)
}

// Clear 清空所有映射与采样
func (s *Stats) Clear() {
	s.metrics.Clear()
	s.threads.Clear()

	s.samplesMu.Lock()
	s.samples = nil
	s.samplesMu.Unlock()
}

// threadStats 获取或创建 goroutine 对应的加锁栈
func (s *Stats) threadStats(goroutineID int64) *ThreadLockStats {
	if t, ok := s.threads.Load(goroutineID); ok {
		return t.(*ThreadLockStats)
	}
	t, _ := s.threads.LoadOrStore(goroutineID, newThreadLockStats(goroutineID))
	return t.(*ThreadLockStats)
}

func (s *Stats) lookupThreadStats(goroutineID int64) (*ThreadLockStats, bool) {
	t, ok := s.threads.Load(goroutineID)
	if !ok {
		return nil, false
	}
	return t.(*ThreadLockStats), true
}

// isSlow 以获取耗时判断，尚未离开 ACQUIRING 的尝试不算慢
func (s *Stats) isSlow(a LockAttempt) bool {
	end, ok := a.TimeTerminalStateWasReached()
	if !ok {
		return false
	}
	return end.Sub(a.StartTime) >= s.cfg.Load().SlowThreshold
}

// interesting 失败与超时总是采样，成功的只在慢的时候采样
func (s *Stats) interesting(a LockAttempt) bool {
	switch a.State {
	case StateAcquireFailed, StateAcquireTimedOut:
		return true
	default:
		return s.isSlow(a)
	}
}

// maybeRecordSample 满足采样条件时记录快照，返回是否记录
func (s *Stats) maybeRecordSample(a *attempt) bool {
	snap := a.snapshot()
	if !s.interesting(snap) {
		return false
	}
	s.recordSample(snap)

	// 加锁出错由 Lock 按 error 级别记录，这里只告警慢加锁与超时
	if snap.State != StateAcquireFailed && s.slowLog.Allow() {
		s.logger.Warn("lock attempt sampled",
			clog.String("path", snap.LockPath),
			clog.String("state", snap.State.String()),
			clog.Int64("goroutine", snap.GoroutineID),
			clog.Duration("timeout", snap.AcquireTimeout),
			clog.Duration("elapsed", snap.AcquireDuration(s.now())))
	}
	return true
}

// recordSample 追加样本，容量满时淘汰最旧的一条
func (s *Stats) recordSample(snap LockAttempt) {
	max := s.cfg.Load().MaxSamples

	s.samplesMu.Lock()
	defer s.samplesMu.Unlock()

	if max <= 0 {
		return
	}
	if len(s.samples) >= max {
		drop := len(s.samples) - max + 1
		s.samples = append(s.samples[:0], s.samples[drop:]...)
	}
	s.samples = append(s.samples, snap)
}
