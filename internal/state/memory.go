package state

import (
	"context"
	"sync"
	"time"
)

type memoryRecord struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store used for tests and single-node runs.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryRecord),
		now:     time.Now,
	}
}

func (m *MemoryStore) Initialize(ctx context.Context) error { return nil }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !rec.expiresAt.IsZero() && !m.now().Before(rec.expiresAt) {
		m.mu.Lock()
		delete(m.records, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	value := make([]byte, len(rec.value))
	copy(value, rec.value)
	return value, true, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	rec := memoryRecord{value: make([]byte, len(value))}
	copy(rec.value, value)
	if ttl > 0 {
		rec.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.records[key] = rec
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	m.records = make(map[string]memoryRecord)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Done() error { return nil }
