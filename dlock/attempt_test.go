package dlock

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLockStateTransitions 测试状态机的合法与非法迁移
func TestLockStateTransitions(t *testing.T) {
	all := []LockState{StateAcquiring, StateAcquired, StateAcquireFailed, StateAcquireTimedOut, StateReleased, StateReleaseFailed}
	allowed := map[LockState][]LockState{
		StateAcquiring: {StateAcquired, StateAcquireFailed, StateAcquireTimedOut},
		StateAcquired:  {StateReleased, StateReleaseFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.canTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

// TestLockStateTerminal 测试终止状态
func TestLockStateTerminal(t *testing.T) {
	assert.False(t, StateAcquiring.Terminal())
	assert.False(t, StateAcquired.Terminal())
	assert.True(t, StateAcquireFailed.Terminal())
	assert.True(t, StateAcquireTimedOut.Terminal())
	assert.True(t, StateReleased.Terminal())
	assert.True(t, StateReleaseFailed.Terminal())
	assert.Equal(t, "LockState(42)", LockState(42).String())
}

// TestAttemptTransition 测试 terminal 时间只在离开 ACQUIRING 时记录
func TestAttemptTransition(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := newAttempt("/a", 7, time.Second, start)

	snap := a.snapshot()
	assert.Equal(t, StateAcquiring, snap.State)
	_, reached := snap.TimeTerminalStateWasReached()
	assert.False(t, reached)
	assert.Equal(t, 3*time.Second, snap.AcquireDuration(start.Add(3*time.Second)))

	require.True(t, a.transition(StateAcquired, start.Add(time.Second)))
	require.True(t, a.transition(StateReleased, start.Add(5*time.Second)))
	assert.False(t, a.transition(StateAcquired, start.Add(6*time.Second)))

	snap = a.snapshot()
	assert.Equal(t, StateReleased, snap.State)
	end, reached := snap.TimeTerminalStateWasReached()
	assert.True(t, reached)
	assert.Equal(t, start.Add(time.Second), end)
	assert.Equal(t, time.Second, snap.AcquireDuration(start.Add(time.Hour)))
	assert.Equal(t, "/a", snap.LockPath)
	assert.Equal(t, int64(7), snap.GoroutineID)
	assert.Equal(t, time.Second, snap.AcquireTimeout)
}

// TestAttemptCapturesCaller 测试调用栈从调用方开始
func TestAttemptCapturesCaller(t *testing.T) {
	a := newAttempt("/a", 1, 0, time.Now())
	assert.Contains(t, a.stackTrace, "dlock.TestAttemptCapturesCaller")
	assert.NotContains(t, a.stackTrace, "dlock.newAttempt")
	assert.NotContains(t, a.stackTrace, "dlock.captureStack")
}

// TestLockAttemptJSON 测试状态以名称序列化
func TestLockAttemptJSON(t *testing.T) {
	b, err := json.Marshal(LockAttempt{LockPath: "/a", State: StateAcquireTimedOut})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"ACQUIRE_TIMED_OUT"`)
	assert.NotContains(t, string(b), "stack_trace")
}

// TestLockAttemptTerminalTimeJSON 测试获取中的尝试不输出 terminal_time
func TestLockAttemptTerminalTimeJSON(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := newAttempt("/a", 1, time.Second, start)

	b, err := json.Marshal(a.snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(b), "terminal_time")

	require.True(t, a.transition(StateAcquired, start.Add(time.Second)))
	b, err = json.Marshal(a.snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"terminal_time":"2024-01-01T00:00:01Z"`)
}
