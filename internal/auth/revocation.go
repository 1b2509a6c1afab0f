package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Revocations records signed-out session ids until their tokens expire.
type Revocations interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevocations keeps revoked ids in process memory. Suitable for a
// single server process.
type MemoryRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
	now func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{ids: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.ids {
		if now.After(exp) {
			delete(m.ids, id)
		}
	}
	m.ids[jti] = until
	return nil
}

func (m *MemoryRevocations) Revoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.ids[jti]
	return ok && !m.now().After(exp), nil
}

const revokedKeyPrefix = "fintrack:revoked:"

// RedisRevocations shares revoked ids between server processes. Keys expire
// with the token.
type RedisRevocations struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRevocations connects to redisURL (redis:// or rediss://) and
// verifies the connection.
func NewRedisRevocations(ctx context.Context, redisURL string) (*RedisRevocations, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisRevocationsFromClient(client), nil
}

func NewRedisRevocationsFromClient(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, now: time.Now}
}

func (r *RedisRevocations) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *RedisRevocations) Revoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, revokedKeyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return true, nil
}

// Client exposes the connection so other shared state can reuse it.
func (r *RedisRevocations) Client() *redis.Client {
	return r.client
}

func (r *RedisRevocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRevocations) Close() error {
	return r.client.Close()
}
