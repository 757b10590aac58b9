package ticket

import (
	"context"
	"fmt"
	"sync"
)

// Ticket is one filed ticket, kept by the memory fake for inspection.
type Ticket struct {
	ID      string
	Summary string
	Body    string
}

// MemoryService is the development fake; it records tickets in memory.
type MemoryService struct {
	mu      sync.Mutex
	tickets []Ticket
}

var _ Service = (*MemoryService)(nil)

// NewMemory builds an empty fake.
func NewMemory() *MemoryService {
	return &MemoryService{}
}

func (m *MemoryService) Open(_ context.Context, summary, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := fmt.Sprintf("TICKET-%d", len(m.tickets)+1)
	m.tickets = append(m.tickets, Ticket{ID: id, Summary: summary, Body: body})
	return id, nil
}

// Tickets returns a copy of everything filed so far.
func (m *MemoryService) Tickets() []Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ticket, len(m.tickets))
	copy(out, m.tickets)
	return out
}
