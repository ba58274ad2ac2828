package dlock

import "github.com/prometheus/client_golang/prometheus"

// Collector 导出的指标名
const (
	MetricCumulativeEvents = "dlock_cumulative_events_total"
	MetricAcquiringNow     = "dlock_acquiring_now"
	MetricLockedNow        = "dlock_locked_now"
)

// Collector 把注册表暴露给 Prometheus 拉取
//
// 只读取 cumulative 计数与 gauge，不会清零 interval 计数，
// 因此可以与 Reporter 同时使用。
type Collector struct {
	stats *Stats

	events    *prometheus.Desc
	acquiring *prometheus.Desc
	locked    *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector 创建 Collector，stats 为 nil 时使用 Global()
func NewCollector(stats *Stats) *Collector {
	if stats == nil {
		stats = Global()
	}
	return &Collector{
		stats: stats,
		events: prometheus.NewDesc(MetricCumulativeEvents,
			"Cumulative lock lifecycle events by path and event.",
			[]string{"path", "event"}, nil),
		acquiring: prometheus.NewDesc(MetricAcquiringNow,
			"Attempts currently waiting to acquire the lock.",
			[]string{"path"}, nil),
		locked: prometheus.NewDesc(MetricLockedNow,
			"Acquisitions currently held, counting each reentrant level.",
			[]string{"path"}, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.events
	ch <- c.acquiring
	ch <- c.locked
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for path, m := range c.stats.LockMetricsByPath() {
		counts := m.CumulativeCounts()
		for _, e := range Events {
			ch <- prometheus.MustNewConstMetric(c.events, prometheus.CounterValue,
				float64(counts.Get(e)), path, e.String())
		}
		ch <- prometheus.MustNewConstMetric(c.acquiring, prometheus.GaugeValue, float64(m.AcquiringNow()), path)
		ch <- prometheus.MustNewConstMetric(c.locked, prometheus.GaugeValue, float64(m.LockedNow()), path)
	}
}
