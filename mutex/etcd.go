package mutex

import (
	"context"
	"errors"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/xerrors"
)

// EtcdMutex 基于 Etcd 的可重入互斥原语
//
// 每个实例持有独立的 Session，租约时长为 DefaultTTL，
// 进程退出或 Session 失效时锁自动释放。
type EtcdMutex struct {
	*reentrant
	b *etcdBackend
}

// NewEtcd 为 path 创建 Etcd 互斥原语，cfg 为 nil 时使用默认配置
//
// 使用完毕后必须调用 Close 释放 Session。
func NewEtcd(client *clientv3.Client, path string, cfg *Config, opts ...Option) (*EtcdMutex, error) {
	if client == nil {
		return nil, ErrConnectorNil
	}
	if path == "" {
		return nil, ErrPathEmpty
	}
	c := Config{Driver: DriverEtcd}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := applyOptions(opts...)
	return newEtcdMutex(client, path, &c, o.logger)
}

func newEtcdMutex(client *clientv3.Client, path string, cfg *Config, logger clog.Logger) (*EtcdMutex, error) {
	session, err := concurrency.NewSession(client, concurrency.WithTTL(int(cfg.DefaultTTL.Seconds())))
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create etcd session")
	}

	key := cfg.Prefix + path
	b := &etcdBackend{
		session: session,
		mutex:   concurrency.NewMutex(session, key),
		key:     key,
		logger:  logger.With(clog.String("key", key)),
	}
	return &EtcdMutex{reentrant: newReentrant(path, b), b: b}, nil
}

// Key 远端 key 前缀，实际的锁 key 会追加租约 ID
func (m *EtcdMutex) Key() string {
	return m.b.key
}

// Close 关闭 Session，仍持有的锁随租约撤销而释放
func (m *EtcdMutex) Close() error {
	return m.b.session.Close()
}

type etcdBackend struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
	key     string
	logger  clog.Logger
}

func (b *etcdBackend) lock(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		err := b.mutex.TryLock(ctx)
		if errors.Is(err, concurrency.ErrLocked) {
			return false, nil
		}
		if err != nil {
			return false, xerrors.Wrap(err, "failed to acquire etcd lock")
		}
		return true, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := b.mutex.Lock(lockCtx)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(lockCtx.Err(), context.DeadlineExceeded):
		return false, nil
	case errors.Is(err, concurrency.ErrSessionExpired):
		return false, xerrors.Wrapf(ErrOwnershipLost, "etcd session expired: %v", err)
	default:
		return false, xerrors.Wrap(err, "failed to acquire etcd lock")
	}
}

func (b *etcdBackend) unlock(ctx context.Context) error {
	select {
	case <-b.session.Done():
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", b.key)
	default:
	}
	if err := b.mutex.Unlock(ctx); err != nil {
		return xerrors.Wrap(err, "failed to release etcd lock")
	}
	return nil
}

// etcdProvider 按路径缓存 EtcdMutex，Close 时关闭全部 Session
type etcdProvider struct {
	client *clientv3.Client
	cfg    *Config
	logger clog.Logger

	mu      sync.Mutex
	mutexes map[string]*EtcdMutex
}

func newEtcdProvider(client *clientv3.Client, cfg *Config, logger clog.Logger) *etcdProvider {
	return &etcdProvider{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		mutexes: make(map[string]*EtcdMutex),
	}
}

func (p *etcdProvider) Mutex(path string) (Mutex, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.mutexes[path]; ok {
		return m, nil
	}
	m, err := newEtcdMutex(p.client, path, p.cfg, p.logger)
	if err != nil {
		return nil, err
	}
	p.mutexes[path] = m
	return m, nil
}

func (p *etcdProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for path, m := range p.mutexes {
		if err := m.Close(); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "close session for %s", path))
		}
		delete(p.mutexes, path)
	}
	return xerrors.Combine(errs...)
}
