package casestore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
)

// record is one stored case. Fields hold the store's private copies.
type record struct {
	c       casefile.Case
	details casefile.Details
	ps      *casefile.ProcessingState
}

// MemoryStore keeps cases in a mutex-guarded map. It backs tests and dev
// runs; every Load hands out deep copies so callers cannot reach the store's
// state behind its back.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]*record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]*record)}
}

func (s *MemoryStore) Create(_ context.Context, c casefile.Case) error {
	if c.ID == "" {
		return fault.New(fault.Validation, component, "create", "case id is required", nil)
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return nil
	}
	stored, err := clone(c)
	if err != nil {
		return err
	}
	s.cases[c.ID] = &record{c: stored}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, caseID string) (casefile.Case, casefile.Details, *casefile.ProcessingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return casefile.Case{}, casefile.Details{}, nil, notFound("load", caseID)
	}
	c, err := clone(rec.c)
	if err != nil {
		return casefile.Case{}, casefile.Details{}, nil, err
	}
	details, err := clone(rec.details)
	if err != nil {
		return casefile.Case{}, casefile.Details{}, nil, err
	}
	var ps *casefile.ProcessingState
	if rec.ps != nil {
		copied, err := clone(*rec.ps)
		if err != nil {
			return casefile.Case{}, casefile.Details{}, nil, err
		}
		ps = &copied
	}
	return c, details, ps, nil
}

func (s *MemoryStore) ApplyUpdates(_ context.Context, caseID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("apply_updates", caseID)
	}
	now := time.Now().UTC()

	// Work on a copy so a failing batch leaves the stored tree untouched.
	details, err := clone(rec.details)
	if err != nil {
		return err
	}
	if err := applyBatch(&details, updates, now); err != nil {
		return err
	}
	rec.details = details
	rec.c.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SaveProcessingState(_ context.Context, caseID string, ps casefile.ProcessingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("save_processing_state", caseID)
	}
	copied, err := clone(ps)
	if err != nil {
		return err
	}
	rec.ps = &copied
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ClearProcessingState(_ context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("clear_processing_state", caseID)
	}
	rec.ps = nil
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetStatus(_ context.Context, caseID string, status casefile.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("set_status", caseID)
	}
	if err := checkTransition(rec.c.Status, status); err != nil {
		return err
	}
	rec.c.Status = status
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetTier(_ context.Context, caseID string, tier int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("set_tier", caseID)
	}
	rec.c.Tier = tier
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) SetSessionIDs(_ context.Context, caseID, assistantSessionID, reasonerSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("set_session_ids", caseID)
	}
	if assistantSessionID != "" {
		rec.c.AssistantSessionID = assistantSessionID
	}
	if reasonerSessionID != "" {
		rec.c.ReasonerSessionID = reasonerSessionID
	}
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordPayment(_ context.Context, caseID string, p casefile.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("record_payment", caseID)
	}
	for _, existing := range rec.c.Payments {
		if existing.EventID == p.EventID {
			return nil
		}
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	rec.c.Payments = append(rec.c.Payments, p)
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status casefile.Status, updatedBefore time.Time, limit int) ([]casefile.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []casefile.Case
	for _, rec := range s.cases {
		if rec.c.Status != status {
			continue
		}
		if !updatedBefore.IsZero() && !rec.c.UpdatedAt.Before(updatedBefore) {
			continue
		}
		c, err := clone(rec.c)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Touch(_ context.Context, caseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cases[caseID]
	if !ok {
		return notFound("touch", caseID)
	}
	rec.c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// clone deep-copies any of the casefile value types via JSON. The types are
// plain data, so a marshal failure means a bug, not an input problem.
func clone[T any](v T) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fault.New(fault.PermanentBackend, component, "clone", "marshal failed", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fault.New(fault.PermanentBackend, component, "clone", "unmarshal failed", err)
	}
	return out, nil
}
