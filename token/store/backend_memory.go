package store

import "sync"

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps values for the lifetime of the process
type MemoryBackend struct {
	values map[string]string
	lock   sync.RWMutex
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string]string),
	}
}

func (m *MemoryBackend) Get(key string) (string, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryBackend) Delete(key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
	return nil
}

// Len returns the number of stored keys
func (m *MemoryBackend) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.values)
}
