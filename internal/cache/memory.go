package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Memory is an in-process Cache used in tests and when no Redis address is
// configured. Entries are stored JSON-encoded so behavior matches the Redis
// implementation.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set implements Cache.
func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{data: data, expiresAt: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Delete implements Cache.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil
}

var _ Cache = (*Memory)(nil)
