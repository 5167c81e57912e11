// Package memory provides in-process storage for single instance
// deployments and tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/xenking/lotto-share/internal/domain/session"
)

var _ session.Store = (*SessionStore)(nil)

type sessionEntry struct {
	values  map[string][]byte
	expires time.Time
}

// SessionStore keeps session values in memory. Every access extends the
// session lifetime by ttl.
type SessionStore struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu       sync.Mutex
	sessions map[uuid.UUID]*sessionEntry
}

// NewSessionStore creates a SessionStore whose sessions expire after ttl of
// inactivity.
func NewSessionStore(ttl time.Duration, clock clockwork.Clock) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[uuid.UUID]*sessionEntry),
	}
}

// live returns the entry of id, dropping it when expired. Must hold s.mu.
func (s *SessionStore) live(id uuid.UUID, now time.Time) *sessionEntry {
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if !now.Before(e.expires) {
		delete(s.sessions, id)
		return nil
	}
	return e
}

func (s *SessionStore) Get(_ context.Context, id uuid.UUID, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e := s.live(id, now)
	if e == nil {
		return nil, nil
	}
	e.expires = now.Add(s.ttl)

	v, ok := e.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *SessionStore) Set(_ context.Context, id uuid.UUID, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	e := s.live(id, now)
	if e == nil {
		e = &sessionEntry{values: make(map[string][]byte)}
		s.sessions[id] = e
	}
	e.values[key] = append([]byte(nil), value...)
	e.expires = now.Add(s.ttl)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id uuid.UUID, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(id, s.clock.Now())
	if e == nil {
		return nil
	}
	for _, k := range keys {
		delete(e.values, k)
	}
	if len(e.values) == 0 {
		delete(s.sessions, id)
	}
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	before := len(s.sessions)
	maps.DeleteFunc(s.sessions, func(_ uuid.UUID, e *sessionEntry) bool {
		return !now.Before(e.expires)
	})
	return before - len(s.sessions)
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}
