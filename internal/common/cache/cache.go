// Package cache provides event deduplication stores. Monitors use them to
// avoid firing the same rule twice for one inbound event, for example an
// email that is still unread on the next poll.
package cache

import (
	"context"
	"sync"
	"time"
)

// DedupStore records event identifiers that have already been processed.
type DedupStore interface {
	// Seen reports whether the key was marked before.
	Seen(ctx context.Context, key string) (bool, error)

	// MarkSeen records the key for at least ttl. A ttl of zero keeps the
	// key until the store is closed.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error

	Close() error
}

// MemoryDedup is an in-process DedupStore. Suitable for single-instance
// deployments and tests.
type MemoryDedup struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{entries: make(map[string]time.Time)}
}

func (m *MemoryDedup) Seen(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	expiry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !expiry.IsZero() && time.Now().After(expiry) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (m *MemoryDedup) MarkSeen(_ context.Context, key string, ttl time.Duration) error {
	var expiry time.Time
	if ttl > 0 {
		expiry = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = expiry
	m.mu.Unlock()
	return nil
}

func (m *MemoryDedup) Close() error {
	m.mu.Lock()
	m.entries = make(map[string]time.Time)
	m.mu.Unlock()
	return nil
}
