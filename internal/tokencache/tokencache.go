// Package tokencache keeps short-lived upstream access tokens in a key-value
// store shared by every instance of the service.
package tokencache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ExpiryBuffer is subtracted from a token's lifetime so a cached token never
// expires in the middle of an upstream call.
const ExpiryBuffer = 60 * time.Second

const keyPrefix = "meet:token:"

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FetchFunc obtains a fresh token and reports how long it is valid for.
type FetchFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

type Cache struct {
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Token returns the cached token for key, calling fetch on a miss. Tokens
// that live no longer than ExpiryBuffer are returned but never cached. Store
// failures degrade to fetching.
func (c *Cache) Token(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if token, ok, err := c.store.Get(ctx, key); err == nil && ok {
		return token, nil
	}

	token, expiresIn, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	if ttl := expiresIn - ExpiryBuffer; ttl > 0 {
		_ = c.store.Set(ctx, key, token, ttl)
	}
	return token, nil
}

// Invalidate drops key, e.g. after the upstream rejected the token.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a process-local Store for single-instance deployments and
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
