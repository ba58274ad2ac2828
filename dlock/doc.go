// Package dlock 为分布式互斥原语提供可重入、可观测的锁包装。
//
// 底层原语（见 mutex 包）负责跨进程互斥，dlock 负责记账：
//   - 每个锁路径的事件计数（累计值与可清零的 interval 值）以及实时 gauge
//   - 每个 goroutine 当前正在获取或持有的锁栈
//   - 失败、超时与慢加锁的采样，附带发起加锁的调用栈
//
// 所有记录都汇总到 Stats 注册表，默认是进程级的 Global()。
// Reporter 把 interval 计数周期性导出到 metrics.Meter，
// Collector 把累计计数暴露给 Prometheus。
//
// 基本用法：
//
//	mu, _ := mutex.NewRedis(client, "/orders/42", nil)
//	lock, _ := dlock.New("/orders/42", mu, dlock.WithLogger(logger))
//
//	err := lock.Do(ctx, 3*time.Second, func(ctx context.Context) error {
//		return process(ctx)
//	})
package dlock
