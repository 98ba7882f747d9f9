package lock

import (
	"sync"

	"github.com/apex/log"
)

// KeyLocker hands out one mutex per key so that callers can serialize work on
// a single upload session or a single logical file without blocking work on
// any other.
type KeyLocker struct {
	mapMutex sync.Mutex
	keyMap   map[string]*sync.Mutex
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		keyMap: make(map[string]*sync.Mutex),
	}
}

func (l *KeyLocker) Acquire(key string) {
	l.lockForKey(key).Lock()
}

// TryAcquire attempts to take the lock for key without blocking. It returns
// false if another caller already holds it.
func (l *KeyLocker) TryAcquire(key string) bool {
	return l.lockForKey(key).TryLock()
}

func (l *KeyLocker) Release(key string) {
	l.mapMutex.Lock()
	m, ok := l.keyMap[key]
	l.mapMutex.Unlock()

	if !ok {
		log.Errorf("Release called on key (%s) with no mutex", key)

		return
	}

	m.Unlock()
}

func (l *KeyLocker) WithLock(key string, f func() error) error {
	l.Acquire(key)
	defer l.Release(key)
	return f()
}

func (l *KeyLocker) lockForKey(key string) *sync.Mutex {
	l.mapMutex.Lock()
	defer l.mapMutex.Unlock()

	keyMutex, ok := l.keyMap[key]
	if !ok {
		keyMutex = &sync.Mutex{}
		l.keyMap[key] = keyMutex
	}

	return keyMutex
}
