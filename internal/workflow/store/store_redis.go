package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kycflow/pkg/domain"
)

const redisKeyPrefix = "kycflow:snapshot:"

// RedisStore keeps the snapshot in Redis, optionally expiring it after ttl.
// Scope separates snapshots of different users sharing one Redis.
type RedisStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed snapshot store. A zero ttl keeps the
// snapshot until cleared.
func NewRedisStore(client redis.Cmdable, scope string, ttl time.Duration) *RedisStore {
	if scope == "" {
		scope = DefaultKey
	}
	return &RedisStore{
		client: client,
		key:    redisKeyPrefix + scope,
		ttl:    ttl,
	}
}

// Key returns the Redis key in use.
func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Save(ctx context.Context, state domain.WorkflowState) error {
	payload, err := encode(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save workflow snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (domain.WorkflowState, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.WorkflowState{}, ErrNotFound
		}
		return domain.WorkflowState{}, fmt.Errorf("load workflow snapshot: %w", err)
	}
	return decode(payload)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear workflow snapshot: %w", err)
	}
	return nil
}

var _ SnapshotStore = (*RedisStore)(nil)
