package dlock

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LockState 一次加锁尝试所处的状态
//
//	ACQUIRING -> ACQUIRED | ACQUIRE_FAILED | ACQUIRE_TIMED_OUT
//	ACQUIRED  -> RELEASED | RELEASE_FAILED
type LockState int

const (
	StateAcquiring LockState = iota
	StateAcquired
	StateAcquireFailed
	StateAcquireTimedOut
	StateReleased
	StateReleaseFailed
)

func (s LockState) String() string {
	switch s {
	case StateAcquiring:
		return "ACQUIRING"
	case StateAcquired:
		return "ACQUIRED"
	case StateAcquireFailed:
		return "ACQUIRE_FAILED"
	case StateAcquireTimedOut:
		return "ACQUIRE_TIMED_OUT"
	case StateReleased:
		return "RELEASED"
	case StateReleaseFailed:
		return "RELEASE_FAILED"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// MarshalText 让 JSON/msgpack 输出状态名而不是数字
func (s LockState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal 之后不会再有任何迁移
func (s LockState) Terminal() bool {
	switch s {
	case StateAcquireFailed, StateAcquireTimedOut, StateReleased, StateReleaseFailed:
		return true
	default:
		return false
	}
}

func (s LockState) canTransitionTo(next LockState) bool {
	switch s {
	case StateAcquiring:
		return next == StateAcquired || next == StateAcquireFailed || next == StateAcquireTimedOut
	case StateAcquired:
		return next == StateReleased || next == StateReleaseFailed
	default:
		return false
	}
}

// LockAttempt 一次加锁尝试的只读快照
type LockAttempt struct {
	LockPath       string        `json:"lock_path" msgpack:"lock_path"`
	GoroutineID    int64         `json:"goroutine_id" msgpack:"goroutine_id"`
	AcquireTimeout time.Duration `json:"acquire_timeout" msgpack:"acquire_timeout"`
	State          LockState     `json:"state" msgpack:"state"`
	StartTime      time.Time     `json:"start_time" msgpack:"start_time"`
	// TerminalTime 离开 ACQUIRING 的时刻，仍在获取中时为零值
	TerminalTime time.Time `json:"terminal_time,omitzero" msgpack:"terminal_time,omitempty"`
	StackTrace   string    `json:"stack_trace,omitempty" msgpack:"stack_trace,omitempty"`
}

// TimeTerminalStateWasReached 第二个返回值表示是否已离开 ACQUIRING
func (a LockAttempt) TimeTerminalStateWasReached() (time.Time, bool) {
	return a.TerminalTime, !a.TerminalTime.IsZero()
}

// AcquireDuration 获取耗时，仍在获取中时返回到 now 为止的耗时
func (a LockAttempt) AcquireDuration(now time.Time) time.Duration {
	if !a.TerminalTime.IsZero() {
		return a.TerminalTime.Sub(a.StartTime)
	}
	return now.Sub(a.StartTime)
}

// attempt 可变的加锁记录，进行中时只被所属 goroutine 的 ThreadLockStats 持有
type attempt struct {
	path        string
	goroutineID int64
	timeout     time.Duration
	start       time.Time
	stackTrace  string

	mu       sync.Mutex
	state    LockState
	terminal time.Time
}

func newAttempt(path string, goroutineID int64, timeout time.Duration, now time.Time) *attempt {
	return &attempt{
		path:        path,
		goroutineID: goroutineID,
		timeout:     timeout,
		start:       now,
		// skip: runtime.Callers, captureStack, newAttempt
		stackTrace: captureStack(3),
		state:      StateAcquiring,
	}
}

// transition 非法迁移返回 false 且不改变状态；terminal 只在离开 ACQUIRING 时记录一次
func (a *attempt) transition(next LockState, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.canTransitionTo(next) {
		return false
	}
	if a.state == StateAcquiring {
		a.terminal = now
	}
	a.state = next
	return true
}

func (a *attempt) snapshot() LockAttempt {
	a.mu.Lock()
	defer a.mu.Unlock()

	return LockAttempt{
		LockPath:       a.path,
		GoroutineID:    a.goroutineID,
		AcquireTimeout: a.timeout,
		State:          a.state,
		StartTime:      a.start,
		TerminalTime:   a.terminal,
		StackTrace:     a.stackTrace,
	}
}

const maxStackDepth = 32

// captureStack 按 panic 输出的格式记录调用栈：
//
//	pkg.Func
//		/path/file.go:42
func captureStack(skip int) string {
	var pcs [maxStackDepth]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}
