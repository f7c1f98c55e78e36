package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker 单实例部署时使用的进程内租约
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	seq    uint64
	now    func() time.Time
}

type memoryLease struct {
	id      uint64
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, ErrHeld
	}

	l.seq++
	id := l.seq
	l.leases[key] = memoryLease{id: id, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.leases[key]; ok && cur.id == id {
				delete(l.leases, key)
			}
		})
	}, nil
}
