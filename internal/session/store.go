// Package session implements cookie-based login sessions backed by SQLite or
// Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"expensetracker/internal/core"
)

// Store persists sessions. Get returns core.ErrNotFound for missing or
// expired sessions.
type Store interface {
	Create(ctx context.Context, s core.Session) error
	Get(ctx context.Context, id string) (core.Session, error)
	Delete(ctx context.Context, id string) error
}

// ExpiredPruner is implemented by stores that need expired sessions removed
// explicitly.
type ExpiredPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sqliteSessions interface {
	CreateSession(ctx context.Context, s core.Session) error
	GetSession(ctx context.Context, id string) (core.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SQLiteStore keeps sessions in the sessions table.
type SQLiteStore struct {
	repo sqliteSessions
}

func NewSQLiteStore(repo sqliteSessions) *SQLiteStore {
	return &SQLiteStore{repo: repo}
}

func (s *SQLiteStore) Create(ctx context.Context, sess core.Session) error {
	return s.repo.CreateSession(ctx, sess)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (core.Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx, now)
}

// RedisStore keeps sessions as JSON values under "session:<id>" with a TTL
// matching the expiry, so Redis prunes them itself.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

type redisSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func redisKey(id string) string {
	return "session:" + id
}

func (s *RedisStore) Create(ctx context.Context, sess core.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now()
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("create session: already expired")
	}
	payload, err := json.Marshal(redisSession{UserID: sess.UserID, ExpiresAt: sess.ExpiresAt, CreatedAt: sess.CreatedAt})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(sess.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (core.Session, error) {
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Session{}, fmt.Errorf("session: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", err)
	}
	var rs redisSession
	if err := json.Unmarshal(raw, &rs); err != nil {
		return core.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if !rs.ExpiresAt.After(s.now()) {
		return core.Session{}, fmt.Errorf("session: %w", core.ErrNotFound)
	}
	return core.Session{ID: id, UserID: rs.UserID, ExpiresAt: rs.ExpiresAt, CreatedAt: rs.CreatedAt}, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
