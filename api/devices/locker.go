package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SecureAccess/api/cache"

	"github.com/google/uuid"
)

// Locker serialises work for one principal. Auto-authorization counts the
// principal's devices and then inserts; both steps run under the same lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. It is enough for a single instance.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// RedisLocker shares the lock across instances through redis SET NX. The key
// expires after ttl so a crashed holder cannot block a principal forever.
type RedisLocker struct {
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{prefix: "lock:devices:", ttl: ttl, retry: 25 * time.Millisecond}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := r.prefix + key
	token := uuid.NewString()
	for {
		ok, err := cache.Acquire(ctx, name, token, r.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire device lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = cache.Release(ctx, name, token)
	}, nil
}

// DefaultLocker picks the redis locker when redis is connected.
func DefaultLocker() Locker {
	if cache.Available() {
		return NewRedisLocker(0)
	}
	return NewKeyedMutex()
}
