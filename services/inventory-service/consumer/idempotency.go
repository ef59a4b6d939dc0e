package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore records which operation ids have been claimed.
type IdempotencyStore interface {
	// Claim returns false when id was already claimed and has not expired.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a redelivered command can run again.
	Release(ctx context.Context, id string) error
}

type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, ttl: ttl}
}

func (s *RedisIdempotencyStore) key(id string) string {
	return "idem:inventory:" + id
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, id string) (bool, error) {
	return s.client.SetNX(ctx, s.key(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// MemoryIdempotencyStore is used when no Redis is configured. Claims do
// not survive a restart.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	claimed map[string]time.Time
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{ttl: ttl, claimed: make(map[string]time.Time)}
}

func (s *MemoryIdempotencyStore) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := time.Now()
	if exp, ok := s.claimed[id]; ok && (s.ttl <= 0 || t.Before(exp)) {
		return false, nil
	}
	s.claimed[id] = t.Add(s.ttl)
	return true, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, id)
	return nil
}
