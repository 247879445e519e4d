package recon

import (
	"sync"

	"fitrec/internal/model"
)

type lockKey struct {
	kind   model.Kind
	bucket int64
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// KeyLocker serializes resolution per (kind, time bucket) while letting
// unrelated keys proceed in parallel. Entries are removed once no goroutine
// holds or waits for them.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[lockKey]*keyLock
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[lockKey]*keyLock)}
}

// Lock acquires every key in order and returns a function releasing them.
// keys must be sorted so that concurrent callers cannot deadlock.
func (l *KeyLocker) Lock(keys []lockKey) (unlock func()) {
	held := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		kl := l.acquire(k)
		kl.mu.Lock()
		held = append(held, kl)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(keys[i])
		}
	}
}

func (l *KeyLocker) acquire(k lockKey) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[k]
	if !ok {
		kl = &keyLock{}
		l.locks[k] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyLocker) release(k lockKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[k]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, k)
	}
}

// size reports how many keys are currently tracked.
func (l *KeyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
