package tabstore

import (
	"sort"
	"strings"
	"sync"
)

// in-process store; also the degraded mode of Fallback
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	size  int64
	quota int64
}

// quota <= 0 means unbounded
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		quota: quota,
	}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.size + entrySize(key, value)
	if old, ok := m.data[key]; ok {
		next -= entrySize(key, old)
	}

	if m.quota > 0 && next > m.quota {
		return ErrQuotaExceeded
	}

	m.data[key] = value
	m.size = next
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[key]; ok {
		m.size -= entrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) Keys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
