package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MDMWatch/internal/domain"
	"MDMWatch/internal/ports"
)

// DefaultRedisPrefix namespaces state keys.
const DefaultRedisPrefix = "mdmwatch:state:"

// RedisStore keeps state as JSON strings, one key per channel.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var (
	_ ports.StateStore  = (*RedisStore)(nil)
	_ ports.StateEraser = (*RedisStore)(nil)
)

// NewRedisStore wraps a client. A zero ttl keeps keys forever.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Read fetches and decodes the state for key.
func (s *RedisStore) Read(ctx context.Context, key string) (domain.NotificationState, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NotificationState{}, domain.ErrStateNotFound
	}
	if err != nil {
		return domain.NotificationState{}, fmt.Errorf("redis get state: %w", err)
	}
	return decodeState(data)
}

// Write stores the encoded state.
func (s *RedisStore) Write(ctx context.Context, key string, state domain.NotificationState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete state: %w", err)
	}
	return nil
}
