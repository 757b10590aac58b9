package billing

import (
	"context"
	"sync"

	"github.com/causahq/causa/pkg/casefile"
)

// MemoryService is the development fake: a per-owner quota table seeded by
// tests or left empty so every case goes through payment.
type MemoryService struct {
	mu     sync.RWMutex
	quotas map[string]map[int]int
}

var _ Service = (*MemoryService)(nil)

// NewMemory builds an empty quota table.
func NewMemory() *MemoryService {
	return &MemoryService{quotas: make(map[string]map[int]int)}
}

// Grant gives the owner n quota slots at the tier.
func (m *MemoryService) Grant(owner casefile.Owner, tier, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ownerKey(owner)
	if m.quotas[key] == nil {
		m.quotas[key] = make(map[int]int)
	}
	m.quotas[key][tier] += n
}

func (m *MemoryService) CheckQuota(_ context.Context, owner casefile.Owner, tier int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quotas[ownerKey(owner)][tier] > 0, nil
}

func ownerKey(owner casefile.Owner) string {
	return string(owner.Kind) + ":" + owner.ID
}
