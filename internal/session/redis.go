package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "kite_dashboard:session:"

// RedisStore is a Store backed by Redis. Expiry is enforced by key TTL,
// so sessions survive process restarts but never outlive their lifetime.
type RedisStore struct {
	client   *redis.Client
	duration time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client:   client,
		duration: DefaultDuration,
	}, nil
}

// WithDuration sets a custom session duration.
func (s *RedisStore) WithDuration(d time.Duration) *RedisStore {
	s.duration = d
	return s
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, userID, accessToken, publicToken string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		AccessToken: accessToken,
		PublicToken: publicToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.duration),
	}

	if err := s.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if session.IsExpired() {
		s.client.Del(ctx, redisKeyPrefix+id)
		return nil, ErrExpired
	}
	return &session, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, redisKeyPrefix+session.ID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// PurgeExpired implements Store. Redis drops expired keys via TTL, so
// there is nothing to sweep.
func (s *RedisStore) PurgeExpired(context.Context) (int, error) {
	return 0, nil
}
