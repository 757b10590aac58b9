package partystore

import (
	"context"
	"sync"
)

// memoryBackend keeps records in a mutex-guarded map. Values are copied on
// the way in and out; Party has no reference fields, so assignment is a
// deep copy.
type memoryBackend struct {
	mu      sync.RWMutex
	parties map[string]Party
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{parties: make(map[string]Party)}
}

func (m *memoryBackend) get(_ context.Context, partyID string) (Party, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parties[partyID]
	if !ok {
		return Party{}, notFound("get", partyID)
	}
	return p, nil
}

func (m *memoryBackend) put(_ context.Context, p Party) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parties[p.PartyID] = p
	return nil
}

func (m *memoryBackend) close() error { return nil }
