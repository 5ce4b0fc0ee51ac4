package quota

import (
	"context"
	"sync"
	"time"
)

// Store is the counter backend. Counters expire at the end of the quota
// window; an increment on a missing or expired key starts a new window.
type Store interface {
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

type memoryEntry struct {
	count   int64
	expires time.Time
}

// MemoryStore is the in-process backend used for tests and single-node
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

// NewMemoryStoreWithClock returns a store driven by an injected clock.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: now}
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expires) {
		entry = memoryEntry{expires: now.Add(ttl)}
	}
	entry.count += delta
	s.entries[key] = entry
	return entry.count, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expires) {
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	remaining := entry.expires.Sub(s.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
