package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/coord/clog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewDefaults(t *testing.T) {
	cfg := &Config{EnvPrefix: "coord"}
	l, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, l)

	ld := l.(*loader)
	assert.Equal(t, "config", ld.cfg.Name)
	assert.Equal(t, "yaml", ld.cfg.FileType)
	assert.Equal(t, "COORD", ld.cfg.EnvPrefix)
	assert.Equal(t, []string{".", "./config"}, ld.cfg.Paths)

	// 调用方的结构体不被修改
	assert.Equal(t, "", cfg.Name)
}

func TestLoadLayersSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "coord.yaml"), `
dlock:
  slow_threshold: 1s
  max_samples: 100
redis:
  addr: "localhost:6379"
  db: 0
`)
	writeFile(t, filepath.Join(dir, "coord.test.yaml"), `
redis:
  db: 2
`)
	writeFile(t, filepath.Join(dir, ".env"), "CLTEST_REDIS_ADDR=from-dotenv:6379\n")

	t.Setenv("CLTEST_ENV", "test")
	t.Setenv("CLTEST_DLOCK_MAX_SAMPLES", "7")

	l, err := New(&Config{Name: "coord", Paths: []string{dir}, EnvPrefix: "CLTEST"}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))
	t.Cleanup(func() { _ = os.Unsetenv("CLTEST_REDIS_ADDR") })

	var lockCfg struct {
		SlowThreshold time.Duration `mapstructure:"slow_threshold"`
		MaxSamples    int           `mapstructure:"max_samples"`
	}
	require.NoError(t, l.UnmarshalKey("dlock", &lockCfg))
	assert.Equal(t, time.Second, lockCfg.SlowThreshold)

	// 环境变量覆盖文件中的值
	assert.Equal(t, "7", l.Get("dlock.max_samples"))
	// 环境特定配置覆盖基础配置
	assert.Equal(t, 2, l.Get("redis.db"))
	// .env 注入的变量
	assert.Equal(t, "from-dotenv:6379", l.Get("redis.addr"))
}

func TestLoadEmptyConfigFails(t *testing.T) {
	dir := t.TempDir()
	l, err := New(&Config{Name: "missing", Paths: []string{dir}, EnvPrefix: "CLEMPTY"}, WithLogger(clog.Discard()))
	require.NoError(t, err)

	err = l.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
}

func TestMustLoadPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(&Config{Name: "missing", Paths: []string{t.TempDir()}, EnvPrefix: "CLPANIC"}, WithLogger(clog.Discard()))
	})
}

func TestWatchNotifiesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coord.yaml")
	writeFile(t, path, "dlock:\n  max_samples: 10\n")

	l, err := New(&Config{Name: "coord", Paths: []string{dir}, EnvPrefix: "CLWATCH"}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := l.Watch(ctx, "dlock.max_samples")
	require.NoError(t, err)

	// 给 fsnotify 一点时间完成注册
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "dlock:\n  max_samples: 20\n")

	select {
	case ev := <-ch:
		assert.Equal(t, "dlock.max_samples", ev.Key)
		assert.Equal(t, 20, ev.Value)
		assert.Equal(t, 10, ev.OldValue)
		assert.Equal(t, "file", ev.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change event")
	}
}

func TestWatchClosesOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "coord.yaml"), "dlock:\n  max_samples: 10\n")

	l, err := New(&Config{Name: "coord", Paths: []string{dir}, EnvPrefix: "CLCANCEL"}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx, "dlock")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel was not closed")
	}

	_, err = l.Watch(context.Background(), "")
	assert.True(t, IsInvalidInput(err))
}
