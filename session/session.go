package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gullin-backend/utils"
)

const (
	keyPrefix     = "pending_login:"
	failurePrefix = "pending_login_failures:"
)

var ErrNotFound = errors.New("pending login session not found")

// PendingLogin is the state kept between the password step and the code step
// of a two-factor login.
type PendingLogin struct {
	UserID       uint   `json:"user_id"`
	PendingToken string `json:"pending_token"`
}

type Store interface {
	Create(ctx context.Context, p PendingLogin) (string, error)
	Get(ctx context.Context, id string) (*PendingLogin, error)
	Delete(ctx context.Context, id string) error
	// RecordFailure counts a wrong code against the session and returns the
	// running total.
	RecordFailure(ctx context.Context, id string) (int64, error)
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, p PendingLogin) (string, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.client.Set(ctx, keyPrefix+id, payload, s.ttl).Err(); err != nil {
		utils.Logger().Error("failed to store pending login", zap.Uint("user_id", p.UserID), zap.Error(err))
		return "", fmt.Errorf("failed to store pending login: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*PendingLogin, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending login: %w", err)
	}
	var p PendingLogin
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("corrupt pending login %s: %w", id, err)
	}
	return &p, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.client.Del(ctx, keyPrefix+id, failurePrefix+id).Err()
}

func (s *RedisStore) RecordFailure(ctx context.Context, id string) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, failurePrefix+id)
		pipe.Expire(ctx, failurePrefix+id, s.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count login failure: %w", err)
	}
	return incr.Val(), nil
}
