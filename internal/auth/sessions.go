// internal/auth/sessions.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore tracks live sessions so that sign-out revokes a token before
// it expires.
type SessionStore interface {
	Create(ctx context.Context, sessionID string, userID uint, expiresAt time.Time) error
	Exists(ctx context.Context, sessionID string) (bool, error)
	Revoke(ctx context.Context, sessionID string) error
	// Active returns the number of unexpired sessions the user holds.
	Active(ctx context.Context, userID uint) (int64, error)
}

const (
	sessionKeyPrefix     = "esplit:session:"
	userSessionKeyPrefix = "esplit:user-sessions:"
)

type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func userSessionsKey(userID uint) string {
	return userSessionKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

func (s *RedisSessionStore) Create(ctx context.Context, sessionID string, userID uint, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sessionID)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sessionID), userID, ttl)
	pipe.ZAdd(ctx, userSessionsKey(userID), redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: sessionID,
	})
	pipe.ExpireAt(ctx, userSessionsKey(userID), expiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return n == 1, nil
}

// Revoke is idempotent: revoking an unknown or expired session is not an error.
func (s *RedisSessionStore) Revoke(ctx context.Context, sessionID string) error {
	owner, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(sessionID))
	pipe.ZRem(ctx, userSessionKeyPrefix+owner, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Active(ctx context.Context, userID uint) (int64, error) {
	key := userSessionsKey(userID)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", now)
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return card.Val(), nil
}
