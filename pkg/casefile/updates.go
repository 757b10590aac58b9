package casefile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
)

// ReplaceKey is the wire marker for whole-value replacement. A list path
// whose value is {"$replace": [...]} is overwritten instead of appended to.
const ReplaceKey = "$replace"

// Replace wraps v so Apply replaces the target list instead of appending.
func Replace(v any) map[string]any {
	return map[string]any{ReplaceKey: v}
}

// appendOnlyPaths never lose elements: replacement is rejected outright.
var appendOnlyPaths = map[string]bool{
	"facts":                  true,
	"timeline":               true,
	"internal_notes":         true,
	"summary.history":        true,
	"agent_interactions.log": true,
}

// IsAppendOnly reports whether path refuses whole-value replacement.
func IsAppendOnly(path string) bool {
	return appendOnlyPaths[path]
}

// PathError reports a rejected update path or value. The orchestrator maps
// it to an invalid_input error for the calling tool.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("update path %q: %s", e.Path, e.Reason)
}

// Apply mutates the tree with a batch of dot-path updates. The batch is
// atomic: every path is validated and decoded before anything changes, so a
// bad path leaves the tree untouched. List paths append by default and
// replace only under the Replace marker; append-only paths reject the
// marker. An empty batch is a no-op and does not stamp LastUpdated.
//
// Paths are applied in sorted order so a batch has one deterministic result.
func (d *Details) Apply(updates map[string]any, now time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ops := make([]func(), 0, len(paths))
	for _, path := range paths {
		op, err := d.compile(path, updates[path], now)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	for _, op := range ops {
		op()
	}
	d.LastUpdated = now
	return nil
}

// compile resolves one path/value pair into a mutation closure. All
// validation and decoding happens here; the closure itself cannot fail.
func (d *Details) compile(path string, raw any, now time.Time) (func(), error) {
	switch path {
	case "summary", "summary.current":
		inner, _ := unwrapReplace(raw)
		text, ok := inner.(string)
		if !ok {
			return nil, &PathError{Path: path, Reason: "expected string"}
		}
		return func() {
			if prev := d.Summary.Current; prev != "" {
				d.Summary.History = append(d.Summary.History, SummaryRevision{Text: prev, ReplacedAt: now})
			}
			d.Summary.Current = text
		}, nil

	case "summary.history":
		return listOp(&d.Summary.History, path, raw, func(r *SummaryRevision) error {
			if r.ReplacedAt.IsZero() {
				r.ReplacedAt = now
			}
			return nil
		})

	case "facts":
		return listOp(&d.Facts, path, raw, func(f *Fact) error {
			if f.Timestamp.IsZero() {
				f.Timestamp = now
			}
			return nil
		})

	case "objectives":
		return listOp(&d.Objectives, path, raw, func(o *Objective) error {
			switch o.Status {
			case "":
				o.Status = ObjectivePending
			case ObjectivePending, ObjectiveAchieved, ObjectiveAbandoned:
			default:
				return fmt.Errorf("objective status %q not one of pending, achieved, abandoned", o.Status)
			}
			return nil
		})

	case "parties_involved":
		return listOp(&d.Parties, path, raw, func(p *PartyRef) error {
			if p.PartyID == "" {
				return fmt.Errorf("party_id required")
			}
			return nil
		})

	case "legal_research.legislation":
		return listOp(&d.LegalResearch.Legislation, path, raw, prepResearch(now))

	case "legal_research.jurisprudence":
		return listOp(&d.LegalResearch.Jurisprudence, path, raw, prepResearch(now))

	case "agent_interactions.log":
		return listOp(&d.AgentInteractions.Log, path, raw, func(e *LogEntry) error {
			if e.ID == "" {
				e.ID = uuid.NewString()
			}
			if e.Timestamp.IsZero() {
				e.Timestamp = now
			}
			return nil
		})

	case "agent_interactions.active_info_request_to_user":
		inner, _ := unwrapReplace(raw)
		text, ok := inner.(string)
		if !ok {
			return nil, &PathError{Path: path, Reason: "expected string"}
		}
		return func() {
			d.AgentInteractions.ActiveInfoRequestToUser = text
		}, nil

	case "drafts":
		return listOp(&d.Drafts, path, raw, func(dr *Draft) error {
			if dr.GeneratedAt.IsZero() {
				dr.GeneratedAt = now
			}
			if dr.Status == "" {
				dr.Status = DraftGenerated
			}
			return nil
		})

	case "timeline":
		return listOp(&d.Timeline, path, raw, func(t *TimelineEvent) error {
			if t.Timestamp.IsZero() {
				t.Timestamp = now
			}
			return nil
		})

	case "internal_notes":
		return listOp(&d.InternalNotes, path, raw, func(n *Note) error {
			if n.Timestamp.IsZero() {
				n.Timestamp = now
			}
			return nil
		})

	case "documents_analysis":
		inner, replace := unwrapReplace(raw)
		var entries map[string]DocumentAnalysis
		if err := decodeValue(inner, &entries); err != nil {
			return nil, &PathError{Path: path, Reason: err.Error()}
		}
		for id, da := range entries {
			if da.AnalyzedAt.IsZero() {
				da.AnalyzedAt = now
			}
			entries[id] = da
		}
		if replace {
			return func() { d.DocumentsAnalysis = entries }, nil
		}
		return func() {
			if d.DocumentsAnalysis == nil {
				d.DocumentsAnalysis = make(map[string]DocumentAnalysis, len(entries))
			}
			for id, da := range entries {
				d.DocumentsAnalysis[id] = da
			}
		}, nil
	}

	if docID, ok := strings.CutPrefix(path, "documents_analysis."); ok {
		if docID == "" || strings.Contains(docID, ".") {
			return nil, &PathError{Path: path, Reason: "unknown path"}
		}
		inner, _ := unwrapReplace(raw)
		var da DocumentAnalysis
		if err := decodeValue(inner, &da); err != nil {
			return nil, &PathError{Path: path, Reason: err.Error()}
		}
		if da.AnalyzedAt.IsZero() {
			da.AnalyzedAt = now
		}
		return func() {
			if d.DocumentsAnalysis == nil {
				d.DocumentsAnalysis = make(map[string]DocumentAnalysis)
			}
			d.DocumentsAnalysis[docID] = da
		}, nil
	}

	return nil, &PathError{Path: path, Reason: "unknown path"}
}

// prepResearch fills citation defaults and enforces the status enum for both
// legal_research lists.
func prepResearch(now time.Time) func(*ResearchEntry) error {
	return func(e *ResearchEntry) error {
		if e.DocID == "" {
			return fmt.Errorf("doc_id required")
		}
		switch e.Status {
		case "":
			e.Status = ResearchConsidered
		case ResearchConsidered, ResearchApplied, ResearchIrrelevant:
		default:
			return fmt.Errorf("research status %q not one of considered, applied, irrelevant", e.Status)
		}
		if e.FetchedAt.IsZero() {
			e.FetchedAt = now
		}
		return nil
	}
}

// listOp compiles an update against a list path: append by default, replace
// under the marker unless the path is append-only. prep fills element
// defaults after decoding and rejects invalid elements.
func listOp[T any](target *[]T, path string, raw any, prep func(*T) error) (func(), error) {
	inner, replace := unwrapReplace(raw)
	if replace && IsAppendOnly(path) {
		return nil, &PathError{Path: path, Reason: "append-only, replace not allowed"}
	}
	elems, err := decodeElems[T](path, inner)
	if err != nil {
		return nil, err
	}
	if prep != nil {
		for i := range elems {
			if err := prep(&elems[i]); err != nil {
				return nil, &PathError{Path: path, Reason: err.Error()}
			}
		}
	}
	if replace {
		return func() { *target = elems }, nil
	}
	return func() { *target = append(*target, elems...) }, nil
}

// decodeElems accepts a single element, a []any of elements, or an
// already-typed value from a Go caller.
func decodeElems[T any](path string, raw any) ([]T, error) {
	switch v := raw.(type) {
	case nil:
		return nil, &PathError{Path: path, Reason: "nil value"}
	case []T:
		out := make([]T, len(v))
		copy(out, v)
		return out, nil
	case []any:
		out := make([]T, 0, len(v))
		for _, item := range v {
			var elem T
			if err := decodeValue(item, &elem); err != nil {
				return nil, &PathError{Path: path, Reason: err.Error()}
			}
			out = append(out, elem)
		}
		return out, nil
	default:
		var elem T
		if err := decodeValue(raw, &elem); err != nil {
			return nil, &PathError{Path: path, Reason: err.Error()}
		}
		return []T{elem}, nil
	}
}

func decodeValue(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		TagName:    "json",
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func unwrapReplace(v any) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v, false
	}
	inner, ok := m[ReplaceKey]
	if !ok {
		return v, false
	}
	return inner, true
}
