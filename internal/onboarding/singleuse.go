package onboarding

import (
	"context"
	"errors"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	platformredis "neighborvendors_backend/internal/platform/redis"
)

// SingleUseStore backs the at-most-once guarantees of the onboarding core:
// continuation-token consumption and the finalize idempotency guard. Values
// expire after their TTL.
type SingleUseStore interface {
	// Put stores value under key for ttl.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns the value and removes it in one step. The second Take
	// for the same key reports ok=false.
	Take(ctx context.Context, key string) (value string, ok bool, err error)
	// Get reads without consuming.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// PutIfAbsent stores value only when the key is unset. Returns the
	// value now present and whether this call stored it.
	PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (current string, stored bool, err error)
}

// NewSingleUseStore returns the Redis-backed store when Redis is configured,
// otherwise the in-process memory store.
func NewSingleUseStore(client *platformredis.Client) SingleUseStore {
	if client == nil {
		return NewMemoryStore()
	}
	return &redisStore{client: client}
}

type redisStore struct {
	client *platformredis.Client
}

func (s *redisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Take(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.GetDel(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *redisStore) PutIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	stored, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if stored {
		return value, true, nil
	}
	current, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		// Lost the race and the winner already expired; treat as stored.
		return value, true, s.client.Set(ctx, key, value, ttl).Err()
	}
	if err != nil {
		return "", false, err
	}
	return current, false, nil
}

// MemoryStore is the in-process SingleUseStore used in tests and redis-less
// deployments. Single-writer/single-reader per browser context, so a plain
// mutex is enough.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Put(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, key)
	if time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return value, true, nil
}
