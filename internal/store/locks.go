package store

import "sync"

// nameLocks hands out per-name reader/writer locks without blocking: a caller
// that cannot get the lock right away is told so and answers the peer with a
// busy status.
type nameLocks struct {
	mu sync.Mutex
	m  map[string]*nameLock
}

type nameLock struct {
	rw   sync.RWMutex
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{m: make(map[string]*nameLock)}
}

func (l *nameLocks) acquire(name string, exclusive bool) (func(), bool) {
	l.mu.Lock()
	entry, ok := l.m[name]
	if !ok {
		entry = &nameLock{}
		l.m[name] = entry
	}
	entry.refs++
	l.mu.Unlock()

	var got bool
	if exclusive {
		got = entry.rw.TryLock()
	} else {
		got = entry.rw.TryRLock()
	}
	if !got {
		l.drop(name, entry)
		return nil, false
	}

	return func() {
		if exclusive {
			entry.rw.Unlock()
		} else {
			entry.rw.RUnlock()
		}
		l.drop(name, entry)
	}, true
}

func (l *nameLocks) drop(name string, entry *nameLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.m, name)
	}
}

func (l *nameLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
