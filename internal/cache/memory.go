package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	fields    map[string]string
	expiresAt time.Time
}

type memoryKeyValue struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	clock   func() time.Time
}

// NewMemoryKeyValue returns a process-local KeyValue. It backs deployments
// that run without Redis and the package tests; snapshots stored here do not
// survive a restart.
func NewMemoryKeyValue() KeyValue {
	return &memoryKeyValue{
		entries: make(map[string]*memoryEntry),
		clock:   time.Now,
	}
}

func (m *memoryKeyValue) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &memoryEntry{value: append([]byte(nil), value...), expiresAt: m.deadline(ttl)}
	return nil
}

func (m *memoryKeyValue) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry := m.live(key)
	if entry == nil || entry.value == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *memoryKeyValue) HSet(_ context.Context, key string, fields map[string]string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.live(key)
	if entry == nil || entry.fields == nil {
		entry = &memoryEntry{fields: make(map[string]string)}
		m.entries[key] = entry
	}
	for field, value := range fields {
		entry.fields[field] = value
	}
	entry.expiresAt = m.deadline(ttl)
	return nil
}

func (m *memoryKeyValue) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry := m.live(key)
	if entry == nil || len(entry.fields) == 0 {
		return nil, ErrNotFound
	}
	copied := make(map[string]string, len(entry.fields))
	for field, value := range entry.fields {
		copied[field] = value
	}
	return copied, nil
}

func (m *memoryKeyValue) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *memoryKeyValue) Ping(context.Context) error {
	return nil
}

func (m *memoryKeyValue) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.clock().Add(ttl)
}

// live returns the entry for key if it exists and has not expired. Expired
// entries are left for the next writer to overwrite rather than reaped here,
// since reads hold only the read lock.
func (m *memoryKeyValue) live(key string) *memoryEntry {
	entry := m.entries[key]
	if entry == nil {
		return nil
	}
	if !entry.expiresAt.IsZero() && m.clock().After(entry.expiresAt) {
		return nil
	}
	return entry
}
