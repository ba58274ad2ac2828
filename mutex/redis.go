package mutex

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/coord/clog"
	"github.com/ceyewan/coord/xerrors"
)

var (
	// releaseScript 只有 token 匹配时才删除，避免误删他人的锁
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

	// renewScript 只有 token 匹配时才续期
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)
)

// RedisMutex 基于 Redis 的可重入互斥原语
type RedisMutex struct {
	*reentrant
	b *redisBackend
}

// NewRedis 为 path 创建 Redis 互斥原语，cfg 为 nil 时使用默认配置
//
// 每个实例持有唯一的 token，远端 key 为 cfg.Prefix + path。
func NewRedis(client redis.UniversalClient, path string, cfg *Config, opts ...Option) (*RedisMutex, error) {
	if client == nil {
		return nil, ErrConnectorNil
	}
	if path == "" {
		return nil, ErrPathEmpty
	}
	c := Config{Driver: DriverRedis}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := applyOptions(opts...)
	return newRedisMutex(client, path, &c, o.logger), nil
}

func newRedisMutex(client redis.UniversalClient, path string, cfg *Config, logger clog.Logger) *RedisMutex {
	b := &redisBackend{
		client: client,
		key:    cfg.Prefix + path,
		token:  uuid.NewString(),
		ttl:    cfg.DefaultTTL,
		retry:  cfg.RetryInterval,
		logger: logger.With(clog.String("key", cfg.Prefix+path)),
	}
	return &RedisMutex{reentrant: newReentrant(path, b), b: b}
}

// Key 远端 key
func (m *RedisMutex) Key() string {
	return m.b.key
}

type redisBackend struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
	retry  time.Duration
	logger clog.Logger

	// 只在持有远端锁期间非空，由 reentrant 的信号量保护
	renewStop chan struct{}
	renewDone chan struct{}
}

func (b *redisBackend) lock(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := b.client.SetNX(ctx, b.key, b.token, b.ttl).Result()
		if err != nil {
			return false, xerrors.Wrap(err, "failed to acquire redis lock")
		}
		if ok {
			b.startWatchdog()
			return true, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return false, nil
		}
		if wait > b.retry {
			wait = b.retry
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *redisBackend) unlock(ctx context.Context) error {
	b.stopWatchdog()

	n, err := releaseScript.Run(ctx, b.client, []string{b.key}, b.token).Int64()
	if err != nil {
		return xerrors.Wrap(err, "failed to release redis lock")
	}
	if n == 0 {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", b.key)
	}
	return nil
}

func (b *redisBackend) startWatchdog() {
	b.renewStop = make(chan struct{})
	b.renewDone = make(chan struct{})
	go b.watchdog(b.renewStop, b.renewDone)
}

func (b *redisBackend) stopWatchdog() {
	if b.renewStop == nil {
		return
	}
	close(b.renewStop)
	<-b.renewDone
	b.renewStop, b.renewDone = nil, nil
}

// watchdog 每 TTL/3 续期一次，续期失败或发现锁已易主时退出
func (b *redisBackend) watchdog(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := b.ttl / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, b.client, []string{b.key}, b.token, b.ttl.Milliseconds()).Int64()
			cancel()

			if err != nil {
				b.logger.Error("watchdog renew failed", clog.Error(err))
				return
			}
			if n == 0 {
				b.logger.Warn("watchdog lost ownership")
				return
			}
		}
	}
}

// redisProvider 按路径缓存 RedisMutex
type redisProvider struct {
	client redis.UniversalClient
	cfg    *Config
	logger clog.Logger

	mu      sync.Mutex
	mutexes map[string]*RedisMutex
}

func newRedisProvider(client redis.UniversalClient, cfg *Config, logger clog.Logger) *redisProvider {
	return &redisProvider{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		mutexes: make(map[string]*RedisMutex),
	}
}

func (p *redisProvider) Mutex(path string) (Mutex, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.mutexes[path]
	if !ok {
		m = newRedisMutex(p.client, path, p.cfg, p.logger)
		p.mutexes[path] = m
	}
	return m, nil
}

// Close Redis 连接归连接器所有，这里不需要释放
func (p *redisProvider) Close() error {
	return nil
}
