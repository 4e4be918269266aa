package store

import "sync"

// threadLocks hands out a logical mutex per thread id so two concurrent
// requests on the same conversation cannot interleave store writes.
// Entries are refcounted and removed when the last holder releases, so
// the map does not grow with conversation count.
type threadLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the thread's lock is held and returns the
// release function.
func (l *threadLocks) acquire(threadID string) func() {
	l.mu.Lock()
	entry, ok := l.entries[threadID]
	if !ok {
		entry = &lockEntry{}
		l.entries[threadID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, threadID)
		}
		l.mu.Unlock()
	}
}
