package blob

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Store used in tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// Put stores content under key. Not part of the Store interface: production
// uploads go directly from the client to the bucket.
func (m *Memory) Put(key string, content []byte) {
	m.mu.Lock()
	m.objects[key] = append([]byte(nil), content...)
	m.mu.Unlock()
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	content, ok := m.objects[key]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return append([]byte(nil), content...), nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Exists reports whether an object is present. Test helper.
func (m *Memory) Exists(key string) bool {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	return ok
}

// SignedUploadURL implements Store with a fake URL.
func (m *Memory) SignedUploadURL(key, _ string, expires time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s?expires=%d", key, int(expires.Seconds())), nil
}

var _ Store = (*Memory)(nil)
