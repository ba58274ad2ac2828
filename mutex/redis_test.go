package mutex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/testkit"
)

func newTestRedisMutex(t *testing.T, path string, cfg *Config) (*RedisMutex, *RedisMutex, func() []string) {
	t.Helper()
	mr, conn := testkit.NewMiniRedis(t)
	a, err := NewRedis(conn.GetClient(), path, cfg, WithLogger(clog.Discard()))
	require.NoError(t, err)
	b, err := NewRedis(conn.GetClient(), path, cfg, WithLogger(clog.Discard()))
	require.NoError(t, err)
	return a, b, mr.Keys
}

// TestRedisAcquireRelease 测试加锁写入 key，释放后删除
func TestRedisAcquireRelease(t *testing.T) {
	mr, conn := testkit.NewMiniRedis(t)
	m, err := NewRedis(conn.GetClient(), "/orders/1", &Config{Prefix: "lock:"}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	assert.Equal(t, "lock:/orders/1", m.Key())
	assert.Equal(t, "/orders/1", m.Path())

	ctx := context.Background()
	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	val, err := mr.Get("lock:/orders/1")
	require.NoError(t, err)
	assert.Equal(t, m.b.token, val)
	assert.Equal(t, 10*time.Second, mr.TTL("lock:/orders/1"))

	require.NoError(t, m.Release(ctx))
	assert.False(t, mr.Exists("lock:/orders/1"))
}

// TestRedisReentrant 测试重入只在最外层释放远端锁
func TestRedisReentrant(t *testing.T) {
	mr, conn := testkit.NewMiniRedis(t)
	m, err := NewRedis(conn.GetClient(), "/a", nil, WithLogger(clog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	for range 3 {
		ok, err := m.TryAcquire(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 3, m.Depth())

	require.NoError(t, m.Release(ctx))
	require.NoError(t, m.Release(ctx))
	assert.True(t, mr.Exists("/a"))

	require.NoError(t, m.Release(ctx))
	assert.False(t, mr.Exists("/a"))
}

// TestRedisContention 测试两个实例竞争同一路径
func TestRedisContention(t *testing.T) {
	a, b, _ := newTestRedisMutex(t, "/shared", &Config{RetryInterval: 10 * time.Millisecond})
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	start := time.Now()
	ok, err = b.TryAcquire(ctx, 80*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)

	// b 超时后必须让出进程内信号量
	ok, err = b.TryAcquire(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))

	ok, err = b.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}

// TestRedisWaitForRelease 测试轮询期间持有者释放后获取成功
func TestRedisWaitForRelease(t *testing.T) {
	a, b, _ := newTestRedisMutex(t, "/shared", &Config{RetryInterval: 10 * time.Millisecond})
	ctx := context.Background()

	held := make(chan struct{})
	go func() {
		ok, _ := a.TryAcquire(ctx, time.Second)
		if ok {
			close(held)
			time.Sleep(50 * time.Millisecond)
			_ = a.Release(ctx)
		}
	}()
	<-held

	ok, err := b.TryAcquire(ctx, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}

// TestRedisContextCanceled 测试轮询期间 ctx 取消
func TestRedisContextCanceled(t *testing.T) {
	a, b, _ := newTestRedisMutex(t, "/shared", &Config{RetryInterval: 10 * time.Millisecond})
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	defer a.Release(ctx)

	cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	ok, err = b.TryAcquire(cctx, 5*time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRedisOwnershipLost 测试 key 过期后释放返回 ErrOwnershipLost，且实例仍可再次加锁
func TestRedisOwnershipLost(t *testing.T) {
	mr, conn := testkit.NewMiniRedis(t)
	m, err := NewRedis(conn.GetClient(), "/a", nil, WithLogger(clog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)
	require.False(t, mr.Exists("/a"))

	assert.ErrorIs(t, m.Release(ctx), ErrOwnershipLost)
	assert.Equal(t, 0, m.Depth())

	ok, err = m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, m.Release(ctx))
}

// TestRedisReleaseKeepsForeignKey 测试释放时不会删除他人的锁
func TestRedisReleaseKeepsForeignKey(t *testing.T) {
	mr, conn := testkit.NewMiniRedis(t)
	m, err := NewRedis(conn.GetClient(), "/a", nil, WithLogger(clog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mr.Set("/a", "someone-else"))
	assert.ErrorIs(t, m.Release(ctx), ErrOwnershipLost)

	val, err := mr.Get("/a")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

// TestRedisWatchdogRenews 测试 Watchdog 续期
func TestRedisWatchdogRenews(t *testing.T) {
	mr, conn := testkit.NewMiniRedis(t)
	m, err := NewRedis(conn.GetClient(), "/a", &Config{DefaultTTL: 300 * time.Millisecond}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := m.TryAcquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// miniredis 的 TTL 不随真实时间减少，手动调小后等待续期恢复
	mr.SetTTL("/a", 50*time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("/a") == 300*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, m.Release(ctx))
	assert.Nil(t, m.b.renewStop)
}

// TestNewRedisInvalidArgs 测试参数校验
func TestNewRedisInvalidArgs(t *testing.T) {
	_, conn := testkit.NewMiniRedis(t)

	_, err := NewRedis(nil, "/a", nil)
	assert.ErrorIs(t, err, ErrConnectorNil)

	_, err = NewRedis(conn.GetClient(), "", nil)
	assert.ErrorIs(t, err, ErrPathEmpty)
}

// TestRedisUniqueTokens 测试每个实例持有不同的 token
func TestRedisUniqueTokens(t *testing.T) {
	a, b, keys := newTestRedisMutex(t, "/a", nil)
	assert.NotEqual(t, a.b.token, b.b.token)
	assert.Empty(t, keys())
}
