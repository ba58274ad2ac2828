package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/metrics"
	"github.com/ceyewan/coord/xerrors"
)

// 导出的指标名
const (
	MetricLockEvents       = "dlock_lock_events_total"
	MetricLockAcquiringNow = "dlock_lock_acquiring_now"
	MetricLockLockedNow    = "dlock_lock_locked_now"
)

// Reporter 周期性地把 interval 计数导出到 metrics.Meter
//
// 每次上报对每个路径调用 FetchAndReset，增量累加到计数器上，两个 gauge
// 直接设置为当前值。同一个 Stats 只应有一个 Reporter，否则增量会被分走。
type Reporter struct {
	stats  *Stats
	logger clog.Logger

	events    metrics.Counter
	acquiring metrics.Gauge
	locked    metrics.Gauge
}

// NewReporter 创建 Reporter，上报周期取自 stats 的 ReportInterval，
// 运行中通过 Stats.UpdateConfig 修改会立即生效
func NewReporter(stats *Stats, meter metrics.Meter, opts ...Option) (*Reporter, error) {
	if stats == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: stats is nil")
	}
	if meter == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "dlock: meter is nil")
	}
	o := applyOptions(opts...)

	events, err := meter.Counter(MetricLockEvents, "Lock lifecycle events by path and event.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create lock events counter")
	}
	acquiring, err := meter.Gauge(MetricLockAcquiringNow, "Attempts currently waiting to acquire the lock.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create acquiring gauge")
	}
	locked, err := meter.Gauge(MetricLockLockedNow, "Acquisitions currently held, counting each reentrant level.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create locked gauge")
	}

	return &Reporter{
		stats:     stats,
		logger:    o.logger,
		events:    events,
		acquiring: acquiring,
		locked:    locked,
	}, nil
}

// ReportOnce 执行一次上报
func (r *Reporter) ReportOnce(ctx context.Context) {
	for path, m := range r.stats.LockMetricsByPath() {
		counts := m.FetchAndReset()
		for _, e := range Events {
			if v := counts.Get(e); v > 0 {
				r.events.Add(ctx, float64(v), metrics.L("path", path), metrics.L("event", e.String()))
			}
		}
		r.acquiring.Set(ctx, float64(m.AcquiringNow()), metrics.L("path", path))
		r.locked.Set(ctx, float64(m.LockedNow()), metrics.L("path", path))
	}
}

// Run 按周期上报直到 ctx 取消，退出前再上报一次
func (r *Reporter) Run(ctx context.Context) error {
	changed := r.stats.configChanged()
	interval := r.stats.Config().ReportInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("lock stats reporter started", clog.Duration("interval", interval))
	for {
		select {
		case <-changed:
			changed = r.stats.configChanged()
			if next := r.stats.Config().ReportInterval; next != interval {
				interval = next
				ticker.Reset(interval)
				r.logger.Info("lock stats report interval changed", clog.Duration("interval", interval))
			}
		case <-ctx.Done():
			r.ReportOnce(context.WithoutCancel(ctx))
			r.logger.Info("lock stats reporter stopped")
			return ctx.Err()
		case <-ticker.C:
			r.ReportOnce(ctx)
		}
	}
}
