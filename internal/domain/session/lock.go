package session

import (
	"sync"

	"github.com/google/uuid"
)

// Locker serialises requests of the same session. Entries are reference
// counted and dropped when the last holder unlocks.
type Locker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the session id is free and returns the unlock function.
func (l *Locker) Lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		defer l.mu.Unlock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
	}
}

// Len returns the number of sessions currently holding or waiting for a lock.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
