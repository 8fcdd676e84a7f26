package coordination

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store used by tests and single-process
// deployments. It honors TTLs lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory coordination store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if entry, ok := s.entries[key]; ok && !entry.expired(now) {
		return false, nil
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) || entry.value != value {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) CompareAndExpire(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(time.Now()) || entry.value != value {
		return false, nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	s.entries[key] = entry
	return true, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	return s.add(key, 1)
}

func (s *MemoryStore) Decr(_ context.Context, key string) (int64, error) {
	return s.add(key, -1)
}

func (s *MemoryStore) add(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || entry.expired(now) {
		entry = memoryEntry{value: "0"}
	}

	current, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, err
	}

	current += delta
	entry.value = strconv.FormatInt(current, 10)
	s.entries[key] = entry
	return current, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	s.entries[key] = entry
	return nil
}
