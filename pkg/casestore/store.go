// Package casestore persists case records, their context trees and the
// suspension checkpoints. One backend instance serves the whole process;
// per-case write ordering is the lock's job, not the store's.
//
// Journaling is uniform across backends: every successful update batch
// stamps last_updated and lands exactly one context_update entry in
// agent_interactions.log, so the audit trail does not depend on which
// backend a deployment picked.
package casestore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

const component = "casestore"

// Store is the case persistence contract. Load returns deep copies; callers
// never share memory with the store.
type Store interface {
	// Create inserts a new case. Creating an id that already exists is a
	// no-op, so webhook-driven creation can retry safely.
	Create(ctx context.Context, c casefile.Case) error

	// Load returns the case record, its context tree and the processing
	// state checkpoint (nil when the last invocation finished).
	Load(ctx context.Context, caseID string) (casefile.Case, casefile.Details, *casefile.ProcessingState, error)

	// ApplyUpdates runs a dot-path update batch against the context tree,
	// journals it and stamps last_updated. The batch is atomic.
	ApplyUpdates(ctx context.Context, caseID string, updates map[string]any) error

	// SaveProcessingState persists the suspension checkpoint.
	SaveProcessingState(ctx context.Context, caseID string, ps casefile.ProcessingState) error

	// ClearProcessingState removes the checkpoint after a terminal reply.
	ClearProcessingState(ctx context.Context, caseID string) error

	// SetStatus applies a macro FSM transition. Illegal edges are rejected.
	SetStatus(ctx context.Context, caseID string, status casefile.Status) error

	// SetTier records the tier decision.
	SetTier(ctx context.Context, caseID string, tier int) error

	// SetSessionIDs stores the provider-side LLM session ids. Empty values
	// leave the corresponding id untouched.
	SetSessionIDs(ctx context.Context, caseID, assistantSessionID, reasonerSessionID string) error

	// RecordPayment appends a payment completion. Duplicate event ids are
	// dropped silently.
	RecordPayment(ctx context.Context, caseID string, p casefile.PaymentRecord) error

	// ListByStatus returns cases in the given status whose updated_at is
	// older than updatedBefore (zero time = no cutoff), oldest first.
	ListByStatus(ctx context.Context, status casefile.Status, updatedBefore time.Time, limit int) ([]casefile.Case, error)

	// Touch bumps updated_at without other changes.
	Touch(ctx context.Context, caseID string) error

	Close() error
}

// New builds a Store for the configured backend.
func New(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	case config.StoreBackendMongo:
		return NewMongoStore(ctx, cfg)
	case config.StoreBackendPostgres, config.StoreBackendMySQL, config.StoreBackendSQLite:
		return NewSQLStore(cfg)
	default:
		return nil, fault.New(fault.Validation, component, "new",
			"unknown case store backend '"+string(cfg.Backend)+"'", nil)
	}
}

// notFound builds the canonical unknown-case error.
func notFound(op, caseID string) error {
	return fault.New(fault.NotFound, component, op, "case "+caseID+" not found", nil)
}

// applyBatch mutates a loaded tree with the batch plus the shared journal
// entry. Validation errors surface as fault Validation so the tool layer
// reports invalid_input to the model.
func applyBatch(d *casefile.Details, updates map[string]any, now time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	if err := d.Apply(updates, now); err != nil {
		return fault.New(fault.Validation, component, "apply_updates", err.Error(), err)
	}
	paths := batchPaths(updates)
	d.AppendLog(casefile.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Kind:      "context_update",
		Summary:   strings.Join(paths, ", "),
		Payload:   map[string]any{"paths": paths},
	})
	return nil
}

func batchPaths(updates map[string]any) []string {
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// checkTransition guards SetStatus across backends.
func checkTransition(from, to casefile.Status) error {
	if !casefile.CanTransition(from, to) {
		return fault.New(fault.Validation, component, "set_status",
			"illegal status transition "+string(from)+" -> "+string(to), nil)
	}
	return nil
}
