package mutex

import "sync"

// LocalGroup 进程内的互斥原语集合，同一路径共享同一把锁
type LocalGroup struct {
	mu    sync.Mutex
	locks map[string]*reentrant
}

// NewLocalGroup 创建 LocalGroup
func NewLocalGroup() *LocalGroup {
	return &LocalGroup{locks: make(map[string]*reentrant)}
}

// Mutex 获取或创建 path 对应的锁
func (g *LocalGroup) Mutex(path string) (Mutex, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.locks[path]
	if !ok {
		r = newReentrant(path, nil)
		g.locks[path] = r
	}
	return r, nil
}

// Close 无需释放资源
func (g *LocalGroup) Close() error {
	return nil
}
