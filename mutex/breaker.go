package mutex

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/metrics"
	"github.com/ceyewan/coord/xerrors"
)

// MetricBreakerStateChanges 熔断器状态变化次数
const MetricBreakerStateChanges = "mutex_breaker_state_changes_total"

// Breaker 为一组 Mutex 共享的熔断器
//
// TryAcquire 返回 error 记为失败，超时（false, nil）与调用方 ctx 结束不算失败。
// 熔断打开时 TryAcquire 直接返回 ErrCircuitOpen，已持有者的重入除外；
// Release 永远不受熔断限制，否则已持有的锁无法归还。
type Breaker struct {
	cb      *gobreaker.CircuitBreaker[bool]
	cfg     BreakerConfig
	logger  clog.Logger
	changes metrics.Counter
}

// NewBreaker 创建熔断器，name 用于日志与指标
func NewBreaker(name string, cfg BreakerConfig, opts ...Option) *Breaker {
	return newBreaker(name, cfg, applyOptions(opts...))
}

func newBreaker(name string, cfg BreakerConfig, o *options) *Breaker {
	cfg.setDefaults()
	b := &Breaker{
		cfg:    cfg,
		logger: o.logger.With(clog.String("breaker", name)),
	}
	if c, err := o.meter.Counter(MetricBreakerStateChanges, "Circuit breaker state changes."); err == nil {
		b.changes = c
	}

	b.cb = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:          name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   b.readyToTrip,
		OnStateChange: b.onStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	return b
}

// WithBreaker 用独立的熔断器包装单个 Mutex
func WithBreaker(m Mutex, cfg BreakerConfig, opts ...Option) Mutex {
	return NewBreaker("mutex", cfg, opts...).Wrap(m)
}

// Wrap 用该熔断器包装 m
func (b *Breaker) Wrap(m Mutex) Mutex {
	return &breakerMutex{inner: m, breaker: b}
}

// State 当前状态：closed、half-open 或 open
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < b.cfg.MinimumRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= b.cfg.FailureRatio
}

func (b *Breaker) onStateChange(name string, from, to gobreaker.State) {
	b.logger.Warn("circuit breaker state changed",
		clog.String("from", from.String()), clog.String("to", to.String()))
	if b.changes != nil {
		b.changes.Inc(context.Background(),
			metrics.L("breaker", name),
			metrics.L("from", from.String()),
			metrics.L("to", to.String()))
	}
}

type breakerMutex struct {
	inner   Mutex
	breaker *Breaker
}

// TryAcquire 已持有时的重入不访问后端，直接交给内层，不经过熔断器
func (m *breakerMutex) TryAcquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if m.HeldByCurrent() {
		return m.inner.TryAcquire(ctx, timeout)
	}
	ok, err := m.breaker.cb.Execute(func() (bool, error) {
		return m.inner.TryAcquire(ctx, timeout)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, xerrors.Wrapf(ErrCircuitOpen, "%v", err)
	}
	return ok, err
}

func (m *breakerMutex) HeldByCurrent() bool {
	h, ok := m.inner.(Holder)
	return ok && h.HeldByCurrent()
}

func (m *breakerMutex) Release(ctx context.Context) error {
	return m.inner.Release(ctx)
}

// breakerProvider 所有路径共享同一个熔断器，后端故障通常是整体性的
type breakerProvider struct {
	inner   Provider
	breaker *Breaker

	mutexes sync.Map // map[string]Mutex
}

func (p *breakerProvider) Mutex(path string) (Mutex, error) {
	if m, ok := p.mutexes.Load(path); ok {
		return m.(Mutex), nil
	}
	inner, err := p.inner.Mutex(path)
	if err != nil {
		return nil, err
	}
	m, _ := p.mutexes.LoadOrStore(path, p.breaker.Wrap(inner))
	return m.(Mutex), nil
}

func (p *breakerProvider) Close() error {
	return p.inner.Close()
}
