package dlock

import "sync"

// ThreadLockStats 单个 goroutine 的加锁栈
//
// 栈顶是最内层、最近一次的加锁。开始加锁时压栈，释放或加锁失败时出栈。
// 嵌套加锁必须严格按 LIFO 释放，这是调用方的约定。
type ThreadLockStats struct {
	goroutineID int64

	mu       sync.Mutex
	attempts []*attempt
}

func newThreadLockStats(goroutineID int64) *ThreadLockStats {
	return &ThreadLockStats{goroutineID: goroutineID}
}

// GoroutineID 所属 goroutine 的 id
func (t *ThreadLockStats) GoroutineID() int64 {
	return t.goroutineID
}

// OngoingLockAttempts 按加锁顺序返回进行中（获取中或已持有）的尝试快照
func (t *ThreadLockStats) OngoingLockAttempts() []LockAttempt {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]LockAttempt, len(t.attempts))
	for i, a := range t.attempts {
		out[i] = a.snapshot()
	}
	return out
}

// Depth 当前栈深度
func (t *ThreadLockStats) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.attempts)
}

// Holds 栈中是否有该路径
func (t *ThreadLockStats) Holds(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, a := range t.attempts {
		if a.path == path {
			return true
		}
	}
	return false
}

func (t *ThreadLockStats) push(a *attempt) {
	t.mu.Lock()
	t.attempts = append(t.attempts, a)
	t.mu.Unlock()
}

// remove 从栈中移除指定尝试
//
// top 为 false 表示它不在栈顶（嵌套顺序被破坏），此时依然移除，
// 保证计数与栈保持一致。
func (t *ThreadLockStats) remove(a *attempt) (found, top bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.attempts) - 1; i >= 0; i-- {
		if t.attempts[i] == a {
			top = i == len(t.attempts)-1
			t.removeAt(i)
			return true, top
		}
	}
	return false, false
}

func (t *ThreadLockStats) removeAt(i int) {
	copy(t.attempts[i:], t.attempts[i+1:])
	t.attempts[len(t.attempts)-1] = nil
	t.attempts = t.attempts[:len(t.attempts)-1]
}
