package resolve

import "sync"

// KeyedLock is a lock table keyed by existing-memory identifier. Entries
// are created lazily on first contention and evicted once the last
// holder releases them, so the table never grows beyond the set of
// currently contended memories.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLock creates an empty lock table.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for key and returns its release function. At
// most one caller holds a given key at a time; concurrent resolutions
// against the same existing memory serialize here.
func (l *KeyedLock) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

// Size returns the number of live entries, for tests and metrics.
func (l *KeyedLock) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
