package metabase

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore caches the admin session token. The client clears it and logs
// in again whenever Metabase answers 401, so a stale entry costs one retry,
// never a failed request.
type SessionStore interface {
	Load(ctx context.Context) (string, bool)
	Save(ctx context.Context, token string, ttl time.Duration)
	Clear(ctx context.Context)
}

// MemorySessionStore keeps the token in process memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) Load(_ context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" || time.Now().After(s.expires) {
		return "", false
	}
	return s.token, true
}

func (s *MemorySessionStore) Save(_ context.Context, token string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expires = time.Now().Add(ttl)
}

func (s *MemorySessionStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// RedisSessionStore shares the token across replicas. Redis failures degrade
// to a cache miss, which just means an extra login.
type RedisSessionStore struct {
	client *redis.Client
	key    string
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, key: "metabase:session"}
}

func (s *RedisSessionStore) Load(ctx context.Context) (string, bool) {
	token, err := s.client.Get(ctx, s.key).Result()
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

func (s *RedisSessionStore) Save(ctx context.Context, token string, ttl time.Duration) {
	_ = s.client.Set(ctx, s.key, token, ttl).Err()
}

func (s *RedisSessionStore) Clear(ctx context.Context) {
	_ = s.client.Del(ctx, s.key).Err()
}
