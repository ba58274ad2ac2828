package mutex

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/testkit"
	"github.com/ceyewan/coord/xerrors"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

// TestNewValidation 测试配置校验
func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		opts    []Option
		wantErr error
	}{
		{name: "nil config", cfg: nil, wantErr: ErrConfigNil},
		{name: "unknown driver", cfg: &Config{Driver: "consul"}, wantErr: ErrUnsupportedDriver},
		{name: "redis without connector", cfg: &Config{Driver: DriverRedis}, wantErr: ErrConnectorNil},
		{name: "etcd without connector", cfg: &Config{Driver: DriverEtcd}, wantErr: ErrConnectorNil},
		{name: "etcd ttl too short", cfg: &Config{Driver: DriverEtcd, DefaultTTL: 500 * time.Millisecond}, wantErr: xerrors.ErrInvalidInput},
		{
			name:    "breaker ratio out of range",
			cfg:     &Config{Driver: DriverLocal, Breaker: &BreakerConfig{Enabled: true, FailureRatio: 1.5}},
			wantErr: xerrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithLogger(clog.Discard())}, tt.opts...)
			p, err := New(tt.cfg, opts...)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestNewDoesNotMutateConfig 测试 New 不修改调用方的配置
func TestNewDoesNotMutateConfig(t *testing.T) {
	cfg := &Config{}
	_, err := New(cfg, WithLogger(clog.Discard()))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

// TestNewLocalProvider 测试 local 后端与共享 LocalGroup
func TestNewLocalProvider(t *testing.T) {
	g := NewLocalGroup()
	p1, err := New(&Config{Driver: DriverLocal}, WithLocalGroup(g), WithLogger(clog.Discard()))
	require.NoError(t, err)
	p2, err := New(&Config{}, WithLocalGroup(g), WithLogger(clog.Discard()))
	require.NoError(t, err)

	a, err := p1.Mutex("/a")
	require.NoError(t, err)
	b, err := p2.Mutex("/a")
	require.NoError(t, err)
	assert.Same(t, a.(*reentrant), b.(*reentrant))

	assert.NoError(t, p1.Close())
}

// TestNewRedisProvider 测试 redis 后端按路径缓存实例
func TestNewRedisProvider(t *testing.T) {
	_, conn := testkit.NewMiniRedis(t)
	p, err := New(&Config{Driver: DriverRedis, Prefix: "coord:lock:"},
		WithRedisConnector(conn), WithLogger(clog.Discard()))
	require.NoError(t, err)
	defer p.Close()

	a, err := p.Mutex("/a")
	require.NoError(t, err)
	b, err := p.Mutex("/a")
	require.NoError(t, err)
	assert.Same(t, a.(*RedisMutex), b.(*RedisMutex))
	assert.Equal(t, "coord:lock:/a", a.(*RedisMutex).Key())

	_, err = p.Mutex("")
	assert.ErrorIs(t, err, ErrPathEmpty)
}

// TestNewWithBreaker 测试启用熔断后 Provider 返回包装后的实例
func TestNewWithBreaker(t *testing.T) {
	p, err := New(&Config{Driver: DriverLocal, Breaker: &BreakerConfig{Enabled: true}}, WithLogger(clog.Discard()))
	require.NoError(t, err)

	a, err := p.Mutex("/a")
	require.NoError(t, err)
	b, err := p.Mutex("/a")
	require.NoError(t, err)

	bm, ok := a.(*breakerMutex)
	require.True(t, ok)
	assert.Same(t, bm, b.(*breakerMutex))
	assert.IsType(t, &reentrant{}, bm.inner)

	_, err = p.Mutex("")
	assert.ErrorIs(t, err, ErrPathEmpty)
}
