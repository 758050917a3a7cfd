package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bookline/models"

	"github.com/go-redis/redis/v8"
)

// ErrSessionExpired signals a session that is missing or past its TTL. The
// user must restart the flow; a session is never fabricated on their behalf.
var ErrSessionExpired = errors.New("session expired")

// SessionStore persists per-chat booking sessions. Expiry is the abandonment
// boundary: a vanished session means the flow restarts from scratch.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (*models.BookingSession, error)
	Save(ctx context.Context, session *models.BookingSession) error
	Delete(ctx context.Context, chatID int64) error
}

// RedisSessionStore keeps sessions in Redis under a per-chat key with a TTL
// refreshed on every save, so an active conversation never expires mid-step.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}

func (s *RedisSessionStore) Get(ctx context.Context, chatID int64) (*models.BookingSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(chatID)).Result()
	if err == redis.Nil {
		return nil, ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var session models.BookingSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *models.BookingSession) error {
	session.UpdatedAt = time.Now()
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(session.ChatID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, sessionKey(chatID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
