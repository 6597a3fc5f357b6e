package storage

import "sync"

// memoryStore implements SessionStore in process memory.
type memoryStore struct {
	slots map[string]string
	mu    sync.RWMutex
}

func NewMemoryStore() SessionStore {
	return &memoryStore{slots: make(map[string]string)}
}

func (m *memoryStore) Load(slot string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slots[slot]
	if !ok || id == "" {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *memoryStore) Save(slot, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = executionID
	return nil
}

func (m *memoryStore) Clear(slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
