package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a bounded in-process cache with per-entry TTL. All access is
// synchronized; it is safe for concurrent runs.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

// NewMemory creates an in-memory cache holding at most maxEntries values.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 256
	}

	return &Memory{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", false
	}

	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return "", false
	}

	return entry.value, true
}

func (m *Memory) Set(_ context.Context, key string, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}

	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: m.now().Add(ttl),
	}
}

// evictLocked drops expired entries first, then the soonest-to-expire entry
// if the cache is still full.
func (m *Memory) evictLocked() {
	now := m.now()
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}

	if len(m.entries) < m.maxEntries {
		return
	}

	var oldestKey string
	var oldest time.Time

	for key, entry := range m.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey = key
			oldest = entry.expiresAt
		}
	}

	delete(m.entries, oldestKey)
}
