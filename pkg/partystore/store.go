package partystore

import (
	"context"
	"sort"
	"strings"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

const component = "partystore"

// backend is the raw record access each storage engine implements. The
// authorization and matching logic above it is shared and lives on Store so
// no backend can accidentally skip it.
type backend interface {
	get(ctx context.Context, partyID string) (Party, error)
	put(ctx context.Context, p Party) error
	close() error
}

// Store reads and writes party records. All read paths that serve drafts go
// through ResolveForDraft, which refuses parties not attached to the case.
type Store struct {
	b backend
}

// New builds a store for the configured backend.
func New(ctx context.Context, cfg *config.StoreConfig) (*Store, error) {
	switch cfg.Backend {
	case config.StoreBackendMemory:
		return NewMemory(), nil
	case config.StoreBackendMongo:
		b, err := newMongoBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Store{b: b}, nil
	case config.StoreBackendPostgres, config.StoreBackendMySQL, config.StoreBackendSQLite:
		b, err := newSQLBackend(cfg)
		if err != nil {
			return nil, err
		}
		return &Store{b: b}, nil
	default:
		return nil, fault.New(fault.Validation, component, "new",
			"unknown party store backend '"+string(cfg.Backend)+"'", nil)
	}
}

// NewMemory builds a store over the in-memory backend, for tests and
// fixtures.
func NewMemory() *Store {
	return &Store{b: newMemoryBackend()}
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, partyID string) (Party, error) {
	return s.b.get(ctx, partyID)
}

// Put stores or replaces a record.
func (s *Store) Put(ctx context.Context, p Party) error {
	if err := p.Validate(); err != nil {
		return fault.New(fault.Validation, component, "put", err.Error(), nil)
	}
	return s.b.put(ctx, p)
}

// Close releases backend resources.
func (s *Store) Close() error {
	return s.b.close()
}

// ResolveForDraft returns the requested field values for one party,
// refusing any party that is not attached to the case. An unknown field
// name or an empty stored value is a validation failure: a draft rendered
// around a hole is worse than no draft.
func (s *Store) ResolveForDraft(ctx context.Context, caseID string, attached []casefile.AttachedParty, partyID string, fields []string) (map[string]string, error) {
	if !attachedContains(attached, partyID) {
		return nil, fault.New(fault.Authorization, component, "resolve_for_draft",
			"party "+partyID+" is not attached to case "+caseID, nil)
	}
	p, err := s.b.get(ctx, partyID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v, ok := p.Field(f)
		if !ok {
			return nil, fault.New(fault.Validation, component, "resolve_for_draft",
				"unknown party field '"+f+"' (valid: "+strings.Join(FieldNames, ", ")+")", nil)
		}
		if v == "" {
			return nil, fault.New(fault.Validation, component, "resolve_for_draft",
				"party "+partyID+" has no value for field '"+f+"'", nil)
		}
		out[f] = v
	}
	return out, nil
}

// FindByReference matches a user-supplied reference ("Popescu", "ACME SRL",
// an email address) against the case's attached parties and returns the
// matching party id. Matching is case-insensitive on names and email; when
// no exact match exists, a substring match is accepted as long as it is
// unique.
func (s *Store) FindByReference(ctx context.Context, attached []casefile.AttachedParty, reference string) (string, error) {
	ref := normalizeReference(reference)
	if ref == "" {
		return "", fault.New(fault.Validation, component, "find_by_reference",
			"reference is empty", nil)
	}

	parties := make([]Party, 0, len(attached))
	for _, a := range attached {
		p, err := s.b.get(ctx, a.PartyID)
		if err != nil {
			if fault.KindOf(err) == fault.NotFound {
				continue
			}
			return "", err
		}
		parties = append(parties, p)
	}

	var exact, partial []string
	for _, p := range parties {
		names := []string{
			p.DisplayName(),
			strings.TrimSpace(p.FirstName + " " + p.LastName),
			strings.TrimSpace(p.LastName + " " + p.FirstName),
			p.LastName,
			p.CompanyName,
			p.Email,
		}
		matchedExact, matchedPartial := false, false
		for _, n := range names {
			n = normalizeReference(n)
			if n == "" {
				continue
			}
			if n == ref {
				matchedExact = true
			} else if strings.Contains(n, ref) {
				matchedPartial = true
			}
		}
		if matchedExact {
			exact = append(exact, p.PartyID)
		} else if matchedPartial {
			partial = append(partial, p.PartyID)
		}
	}

	candidates := exact
	if len(candidates) == 0 {
		candidates = partial
	}
	candidates = dedupe(candidates)
	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return "", fault.New(fault.NotFound, component, "find_by_reference",
			"no attached party matches reference '"+reference+"'", nil)
	default:
		return "", fault.New(fault.Validation, component, "find_by_reference",
			"reference '"+reference+"' matches more than one attached party", nil)
	}
}

func attachedContains(attached []casefile.AttachedParty, partyID string) bool {
	for _, a := range attached {
		if a.PartyID == partyID {
			return true
		}
	}
	return false
}

// normalizeReference lowercases and collapses runs of whitespace.
func normalizeReference(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// notFound builds the canonical unknown-party error.
func notFound(op, partyID string) error {
	return fault.New(fault.NotFound, component, op, "party "+partyID+" not found", nil)
}
