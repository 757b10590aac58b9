package caselock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker keeps leases in a mutex-guarded map. Suitable for tests and
// single-instance deployments; multi-instance deployments need the redis
// backend.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]Lease
	lease  time.Duration
	now    func() time.Time
}

var _ Locker = (*MemoryLocker)(nil)

// NewMemoryLocker builds a locker with the given lease duration.
func NewMemoryLocker(lease time.Duration) *MemoryLocker {
	return &MemoryLocker{
		leases: make(map[string]Lease),
		lease:  lease,
		now:    time.Now,
	}
}

func (m *MemoryLocker) Acquire(_ context.Context, caseID, owner string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if held, ok := m.leases[caseID]; ok && held.Deadline.After(now) {
		return Lease{}, ErrBusy
	}
	l := Lease{
		CaseID:   caseID,
		Owner:    owner,
		Token:    uuid.NewString(),
		Deadline: now.Add(m.lease),
	}
	m.leases[caseID] = l
	return l, nil
}

func (m *MemoryLocker) Release(_ context.Context, lease Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.leases[lease.CaseID]; ok && held.Token == lease.Token {
		delete(m.leases, lease.CaseID)
	}
	return nil
}

func (m *MemoryLocker) SweepExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, held := range m.leases {
		if !held.Deadline.After(now) {
			delete(m.leases, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryLocker) Close() error { return nil }
