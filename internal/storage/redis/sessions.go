// Package redis stores sessions in Redis, one hash per session.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/lotto-share/internal/domain/session"
)

const keyPrefix = "lotto:session:"

var _ session.Store = (*SessionStore)(nil)

// NewClient connects to the Redis server at redisURL and pings it.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// SessionStore keeps every session in a hash whose expiry is refreshed on
// each access.
type SessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSessionStore creates a SessionStore with the given inactivity ttl.
func NewSessionStore(client redis.UniversalClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func sessionKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (s *SessionStore) Get(ctx context.Context, id uuid.UUID, key string) ([]byte, error) {
	k := sessionKey(id)

	var get *redis.StringCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGet(ctx, k, key)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(err, "get session %s key %q", id, key)
	}

	v, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s key %q", id, key)
	}
	return v, nil
}

func (s *SessionStore) Set(ctx context.Context, id uuid.UUID, key string, value []byte) error {
	k := sessionKey(id)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, key, value)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "set session %s key %q", id, key)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id uuid.UUID, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, sessionKey(id), keys...).Err(); err != nil {
		return errors.Wrapf(err, "delete session %s keys", id)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
