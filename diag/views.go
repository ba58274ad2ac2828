package diag

import (
	"sort"

	"github.com/ceyewan/coord/dlock"
)

// PathMetrics 单个路径的累计计数与 gauge
type PathMetrics struct {
	Path         string       `json:"path" msgpack:"path"`
	Cumulative   dlock.Counts `json:"cumulative" msgpack:"cumulative"`
	AcquiringNow int64        `json:"acquiring_now" msgpack:"acquiring_now"`
	LockedNow    int64        `json:"locked_now" msgpack:"locked_now"`
}

// ThreadView 单个 goroutine 正在获取或持有的锁
type ThreadView struct {
	GoroutineID int64               `json:"goroutine_id" msgpack:"goroutine_id"`
	Attempts    []dlock.LockAttempt `json:"attempts" msgpack:"attempts"`
}

// pathMetrics 按路径排序；path 非空时只返回该路径
func pathMetrics(stats *dlock.Stats, path string) []PathMetrics {
	out := make([]PathMetrics, 0)
	for p, m := range stats.LockMetricsByPath() {
		if path != "" && p != path {
			continue
		}
		out = append(out, PathMetrics{
			Path:         p,
			Cumulative:   m.CumulativeCounts(),
			AcquiringNow: m.AcquiringNow(),
			LockedNow:    m.LockedNow(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// threads 默认跳过空栈的 goroutine
func threads(stats *dlock.Stats, all, withStack bool) []ThreadView {
	out := make([]ThreadView, 0)
	for _, ts := range stats.ThreadLockStats() {
		attempts := ts.OngoingLockAttempts()
		if len(attempts) == 0 && !all {
			continue
		}
		if !withStack {
			stripStacks(attempts)
		}
		out = append(out, ThreadView{GoroutineID: ts.GoroutineID(), Attempts: attempts})
	}
	return out
}

// samples 最旧的在前
func samples(stats *dlock.Stats, path string, withStack bool) []dlock.LockAttempt {
	all := stats.LockAttemptSamples()
	out := make([]dlock.LockAttempt, 0, len(all))
	for _, a := range all {
		if path != "" && a.LockPath != path {
			continue
		}
		out = append(out, a)
	}
	if !withStack {
		stripStacks(out)
	}
	return out
}

func stripStacks(attempts []dlock.LockAttempt) {
	for i := range attempts {
		attempts[i].StackTrace = ""
	}
}
