package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-key expiry. It backs the console
// when no Valkey address is configured.
type MemoryProvider struct {
	mu         sync.Mutex
	data       map[string]memoryItem
	maxEntries int
	now        func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates a MemoryProvider holding at most maxEntries keys. Expired
// keys are evicted first when the limit is reached; after that, the entry closest to
// expiry goes.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryProvider{data: make(map[string]memoryItem), maxEntries: maxEntries, now: time.Now}
}

// Get returns a copy of the stored value or ErrCacheMiss.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if m.expired(it) {
		delete(m.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value. A non-positive ttl keeps the entry until evicted.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	if _, exists := m.data[key]; !exists && len(m.data) >= m.maxEntries {
		m.evictLocked()
	}
	m.data[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes a key.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops every entry.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]memoryItem)
	return nil
}

// Len reports the number of stored keys, expired or not.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MemoryProvider) expired(it memoryItem) bool {
	return !it.expiresAt.IsZero() && m.now().After(it.expiresAt)
}

func (m *MemoryProvider) evictLocked() {
	var (
		victim   string
		earliest time.Time
	)
	for key, it := range m.data {
		if m.expired(it) {
			delete(m.data, key)
			continue
		}
		if victim == "" || (!it.expiresAt.IsZero() && (earliest.IsZero() || it.expiresAt.Before(earliest))) {
			victim, earliest = key, it.expiresAt
		}
	}
	if len(m.data) >= m.maxEntries && victim != "" {
		delete(m.data, victim)
	}
}
