package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     any
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded in-memory Store. Expiry is lazy: entries
// past their deadline are dropped on the next read that touches them.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	clock   func() time.Time

	hits      uint64
	misses    uint64
	evictions uint64
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore constructs an empty memory-backed cache.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		entries: make(map[string]entry),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get implements the Store interface.
func (s *MemoryStore) Get(_ context.Context, key string) (any, bool) {
	now := s.clock().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.entries[key]
	if !ok {
		s.misses++
		return nil, false
	}
	if !record.expiresAt.IsZero() && !now.Before(record.expiresAt) {
		delete(s.entries, key)
		s.evictions++
		s.misses++
		return nil, false
	}

	s.hits++
	return record.value, true
}

// Set implements the Store interface.
func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if key == "" {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.clock().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
}

// Delete implements the Store interface.
func (s *MemoryStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DeleteContaining implements the Store interface.
func (s *MemoryStore) DeleteContaining(_ context.Context, fragment string) int {
	if fragment == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if strings.Contains(key, fragment) {
			delete(s.entries, key)
			removed++
		}
	}
	s.evictions += uint64(removed)
	return removed
}

// DeletePrefix implements the Store interface.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) int {
	if prefix == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	s.evictions += uint64(removed)
	return removed
}

// Flush implements the Store interface.
func (s *MemoryStore) Flush(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictions += uint64(len(s.entries))
	s.entries = make(map[string]entry)
}

// Stats implements the Store interface.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:   len(s.entries),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// CleanupExpired removes entries past their deadline, up to limit. A non
// positive limit sweeps everything. Intended for periodic background sweeps.
func (s *MemoryStore) CleanupExpired(_ context.Context, now time.Time, limit int) int {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}

	removed := 0
	for key, record := range s.entries {
		if record.expiresAt.IsZero() || now.Before(record.expiresAt) {
			continue
		}
		delete(s.entries, key)
		removed++
		if removed >= limit {
			break
		}
	}
	s.evictions += uint64(removed)
	return removed
}
