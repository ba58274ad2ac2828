package dlock

import (
	"fmt"
	"time"

	"github.com/ceyewan/coord/xerrors"
)

// 错误码，可通过 xerrors.GetCode 取出
const (
	CodeTimeout       = "DLOCK_TIMEOUT"
	CodeAcquireFailed = "DLOCK_ACQUIRE_FAILED"
	CodeReleaseFailed = "DLOCK_RELEASE_FAILED"
)

var (
	// ErrTimedOut 在超时时间内未能获取锁，用 errors.Is 匹配 *TimeoutError
	ErrTimedOut = xerrors.New("dlock: acquire timed out")

	// ErrAcquireFailed 底层原语加锁出错，用 errors.Is 匹配 *AcquireError
	ErrAcquireFailed = xerrors.New("dlock: acquire failed")

	// ErrReleaseFailed 底层原语释放出错，用 errors.Is 匹配 *ReleaseError
	ErrReleaseFailed = xerrors.New("dlock: release failed")

	// ErrLockNotHeld 当前 goroutine 并未持有该锁
	ErrLockNotHeld = xerrors.New("dlock: lock not held")

	// ErrMutexNil 未提供底层原语
	ErrMutexNil = xerrors.New("dlock: mutex is nil")

	// ErrPathEmpty 锁路径为空
	ErrPathEmpty = xerrors.New("dlock: lock path is empty")

	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("dlock: config is nil")
)

// TimeoutError 在 Timeout 内没有拿到 Path 对应的锁
type TimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("dlock: timed out after %s acquiring lock %s", e.Timeout, e.Path)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimedOut || target == xerrors.ErrTimeout
}

func (e *TimeoutError) ErrorCode() string { return CodeTimeout }

// AcquireError 底层原语加锁时返回了错误，Cause 保留原始错误
type AcquireError struct {
	Path    string
	Timeout time.Duration
	Cause   error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("dlock: failed to acquire lock %s (timeout %s): %v", e.Path, e.Timeout, e.Cause)
}

func (e *AcquireError) Unwrap() error { return e.Cause }

func (e *AcquireError) Is(target error) bool { return target == ErrAcquireFailed }

func (e *AcquireError) ErrorCode() string { return CodeAcquireFailed }

// ReleaseError 底层原语释放时返回了错误
//
// 返回该错误时本层的计数与加锁栈已经完成更新，锁在本层视角下已释放。
type ReleaseError struct {
	Path  string
	Cause error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("dlock: failed to release lock %s: %v", e.Path, e.Cause)
}

func (e *ReleaseError) Unwrap() error { return e.Cause }

func (e *ReleaseError) Is(target error) bool { return target == ErrReleaseFailed }

func (e *ReleaseError) ErrorCode() string { return CodeReleaseFailed }
