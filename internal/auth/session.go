package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hermes/internal/storage"
)

// DefaultSessionTTL matches the lifetime of the session cookie.
const DefaultSessionTTL = 7 * 24 * time.Hour

// ErrSessionNotFound is returned for unknown or expired tokens.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore maps opaque tokens to user ids.
type SessionStore interface {
	Create(ctx context.Context, userID int64) (token string, expiresAt time.Time, err error)
	Lookup(ctx context.Context, token string) (int64, error)
	Delete(ctx context.Context, token string) error
}

// sessionRepo is the part of *storage.Store the SQL session store needs.
type sessionRepo interface {
	CreateSession(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	GetSession(ctx context.Context, token string) (*storage.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// SQLSessionStore keeps sessions in the sessions table.
type SQLSessionStore struct {
	repo sessionRepo
	ttl  time.Duration
	now  func() time.Time
}

// NewSQLSessionStore returns a store backed by repo.
func NewSQLSessionStore(repo sessionRepo, ttl time.Duration) *SQLSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SQLSessionStore{repo: repo, ttl: ttl, now: time.Now}
}

func (s *SQLSessionStore) Create(ctx context.Context, userID int64) (string, time.Time, error) {
	token := uuid.NewString()
	expiresAt := s.now().Add(s.ttl)
	if err := s.repo.CreateSession(ctx, userID, token, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *SQLSessionStore) Lookup(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrSessionNotFound
	}
	sess, err := s.repo.GetSession(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, err
	}
	if !sess.ExpiresAt.After(s.now()) {
		_ = s.repo.DeleteSession(ctx, token)
		return 0, ErrSessionNotFound
	}
	return sess.UserID, nil
}

func (s *SQLSessionStore) Delete(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSessionStore keeps sessions as session:{token} keys with a TTL.
type RedisSessionStore struct {
	client redisClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSessionStore returns a store backed by client.
func NewRedisSessionStore(client redisClient, ttl time.Duration, logger zerolog.Logger) (*RedisSessionStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis_sessions").Logger(),
	}, nil
}

func sessionKey(token string) string {
	return "session:" + token
}

func (s *RedisSessionStore) Create(ctx context.Context, userID int64) (string, time.Time, error) {
	token := uuid.NewString()
	expiresAt := time.Now().Add(s.ttl)
	if err := s.client.Set(ctx, sessionKey(token), strconv.FormatInt(userID, 10), s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to store session")
		return "", time.Time{}, fmt.Errorf("create session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *RedisSessionStore) Lookup(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrSessionNotFound
	}
	value, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lookup session: %w", err)
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		s.logger.Warn().Str("value", value).Msg("Corrupt session value")
		return 0, ErrSessionNotFound
	}
	return userID, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}
