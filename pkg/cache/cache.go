package cache

import (
	"context"
	"sync"
)

// Invalidator drops cached data for a key so the next read refetches it.
// The resume routine calls it with a fixed, explicit key list; it is never
// derived dynamically.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Resume invalidation keys. These form a static contract with the screens
// that render the corresponding data.
const (
	KeyConversations = "messaging:conversations"
	KeyNotifications = "notifications:list"
	KeyUnreadCounts  = "counters:unread"
)

// ResumeKeys is the fixed set invalidated on every successful resume.
func ResumeKeys() []string {
	return []string{KeyConversations, KeyNotifications, KeyUnreadCounts}
}

// Multi fans an invalidation out to several stores. Every store is attempted;
// the first error is returned after the pass completes.
type Multi []Invalidator

// Invalidate drops key from every store.
func (m Multi) Invalidate(ctx context.Context, key string) error {
	var first error
	for _, inv := range m {
		if err := inv.Invalidate(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Memory is an in-process key/value cache. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Get returns the cached value for key, if any.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Put stores a value under key.
func (m *Memory) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Invalidate removes key. Removing an absent key is not an error.
func (m *Memory) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
