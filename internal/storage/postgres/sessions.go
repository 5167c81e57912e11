package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/lotto-share/internal/domain/session"
)

const (
	getSessionEntrySQL = `UPDATE session_entries SET updated_at = now()
	WHERE session_id = $1 AND key = $2 AND updated_at > now() - make_interval(secs => $3)
	RETURNING value`

	setSessionEntrySQL = `INSERT INTO session_entries (session_id, key, value, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (session_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	deleteSessionEntriesSQL = `DELETE FROM session_entries WHERE session_id = $1 AND key = ANY($2)`

	sweepSessionEntriesSQL = `DELETE FROM session_entries WHERE updated_at <= now() - make_interval(secs => $1)`
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore implements session.Store with one row per session key. Each
// key expires independently after ttl without access.
type SessionStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewSessionStore returns a SessionStore that uses the given pool.
func NewSessionStore(pool *pgxpool.Pool, ttl time.Duration) *SessionStore {
	return &SessionStore{pool: pool, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, getSessionEntrySQL, id, key, s.ttl.Seconds()).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s key %q: %w", id, key, err)
	}
	return value, nil
}

func (s *SessionStore) Set(ctx context.Context, id uuid.UUID, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if _, err := s.pool.Exec(ctx, setSessionEntrySQL, id, key, value); err != nil {
		return fmt.Errorf("setting session %s key %q: %w", id, key, err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, deleteSessionEntriesSQL, id, keys); err != nil {
		return fmt.Errorf("deleting session %s keys: %w", id, err)
	}
	return nil
}

// Sweep deletes expired entries and returns how many were removed.
func (s *SessionStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, sweepSessionEntriesSQL, s.ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("sweeping sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks database connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
