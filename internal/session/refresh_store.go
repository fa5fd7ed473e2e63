package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when no refresh token is stored for the user.
var ErrNoSession = errors.New("session: no refresh token stored")

const keyPrefix = "refresh_token:"

// RefreshStore keeps at most one valid refresh token per user.
type RefreshStore interface {
	Save(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error
	Get(ctx context.Context, userID uuid.UUID) (string, error)
	// DeleteAll removes the user's refresh state, including keys scoped to a
	// tenant.
	DeleteAll(ctx context.Context, userID uuid.UUID) error
}

func Key(userID uuid.UUID) string {
	return keyPrefix + userID.String()
}

type RedisRefreshStore struct {
	client redis.UniversalClient
}

func NewRedisRefreshStore(client redis.UniversalClient) *RedisRefreshStore {
	return &RedisRefreshStore{client: client}
}

func (s *RedisRefreshStore) Save(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	if err := s.client.Set(ctx, Key(userID), token, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func (s *RedisRefreshStore) Get(ctx context.Context, userID uuid.UUID) (string, error) {
	val, err := s.client.Get(ctx, Key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("get refresh token: %w", err)
	}
	return val, nil
}

func (s *RedisRefreshStore) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	keys := []string{Key(userID)}

	iter := s.client.Scan(ctx, 0, Key(userID)+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan refresh tokens: %w", err)
	}

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete refresh tokens: %w", err)
	}
	return nil
}
