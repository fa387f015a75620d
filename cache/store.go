package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the durable key-value collaborator behind the L2 tier. Any
// backend with TTL-bounded key-value semantics qualifies; the engine
// treats keys and values as opaque.
type Store interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the given time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore is an in-process Store for development and tests. It
// honors TTLs lazily: a dead value is dropped on read or listing.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memStoreValue
}

type memStoreValue struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]memStoreValue)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(v.expiresAt) {
		delete(s.values, key)
		return nil, false, nil
	}
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = memStoreValue{data: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for key, v := range s.values {
		if now.After(v.expiresAt) {
			delete(s.values, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
