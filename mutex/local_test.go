package mutex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLocalReentrant 测试同一 goroutine 重入与逐层释放
func TestLocalReentrant(t *testing.T) {
	g := NewLocalGroup()
	m, err := g.Mutex("/a")
	require.NoError(t, err)
	r := m.(*reentrant)
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.TryAcquire(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, r.Depth())
	assert.True(t, r.HeldByCurrent())

	require.NoError(t, m.Release(ctx))
	assert.Equal(t, 1, r.Depth())
	require.NoError(t, m.Release(ctx))
	assert.Equal(t, 0, r.Depth())
	assert.False(t, r.HeldByCurrent())

	assert.ErrorIs(t, m.Release(ctx), ErrNotOwner)
}

// TestLocalContention 测试其他 goroutine 竞争时超时返回 false
func TestLocalContention(t *testing.T) {
	g := NewLocalGroup()
	m, _ := g.Mutex("/a")
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer m.Release(ctx)

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 2)
	go func() {
		ok, err := m.TryAcquire(ctx, 0)
		done <- result{ok, err}
	}()
	go func() {
		ok, err := m.TryAcquire(ctx, 50*time.Millisecond)
		done <- result{ok, err}
	}()

	for range 2 {
		r := <-done
		assert.NoError(t, r.err)
		assert.False(t, r.ok)
	}
}

// TestLocalWaitThenAcquire 测试等待期间持有者释放后获取成功
func TestLocalWaitThenAcquire(t *testing.T) {
	g := NewLocalGroup()
	m, _ := g.Mutex("/a")
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		ok, _ := m.TryAcquire(ctx, time.Second)
		if ok {
			close(held)
			<-release
			_ = m.Release(ctx)
		}
	}()
	<-held

	time.AfterFunc(30*time.Millisecond, func() { close(release) })
	ok, err := m.TryAcquire(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, m.Release(ctx))
}

// TestLocalReleaseByOtherGoroutine 测试非持有者释放返回 ErrNotOwner
func TestLocalReleaseByOtherGoroutine(t *testing.T) {
	g := NewLocalGroup()
	m, _ := g.Mutex("/a")
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Release(ctx) }()
	assert.ErrorIs(t, <-errCh, ErrNotOwner)

	assert.NoError(t, m.Release(ctx))
}

// TestLocalContextCanceled 测试 ctx 已取消时返回 ctx.Err()
func TestLocalContextCanceled(t *testing.T) {
	g := NewLocalGroup()
	m, _ := g.Mutex("/a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := m.TryAcquire(ctx, time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestLocalGroupSharesPath 测试同一路径返回同一实例
func TestLocalGroupSharesPath(t *testing.T) {
	g := NewLocalGroup()
	a, err := g.Mutex("/a")
	require.NoError(t, err)
	b, err := g.Mutex("/a")
	require.NoError(t, err)
	c, err := g.Mutex("/b")
	require.NoError(t, err)

	assert.Same(t, a.(*reentrant), b.(*reentrant))
	assert.NotSame(t, a.(*reentrant), c.(*reentrant))

	_, err = g.Mutex("")
	assert.ErrorIs(t, err, ErrPathEmpty)
	assert.NoError(t, g.Close())
}

// TestLocalMutualExclusion 测试并发下临界区互斥
func TestLocalMutualExclusion(t *testing.T) {
	g := NewLocalGroup()
	m, _ := g.Mutex("/counter")
	ctx := context.Background()

	const workers, rounds = 8, 100
	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		counter int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range rounds {
				ok, err := m.TryAcquire(ctx, 5*time.Second)
				if err != nil || !ok {
					t.Errorf("acquire failed: ok=%v err=%v", ok, err)
					return
				}
				if inside.Add(1) != 1 {
					t.Error("two goroutines inside critical section")
				}
				counter++
				inside.Add(-1)
				if err := m.Release(ctx); err != nil {
					t.Errorf("release failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*rounds, counter)
}
