package casefile

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var applyNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func cloneDetails(t *testing.T, d *Details) *Details {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var out Details
	require.NoError(t, json.Unmarshal(raw, &out))
	return &out
}

func TestApplyAppendsFacts(t *testing.T) {
	d := &Details{}

	err := d.Apply(map[string]any{
		"facts": map[string]any{"source": "user", "fact": "Contractul a fost semnat pe 2024-03-01"},
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.Facts, 1)
	assert.Equal(t, "user", d.Facts[0].Source)
	assert.Equal(t, applyNow, d.Facts[0].Timestamp, "missing timestamp defaults to apply time")
	assert.Equal(t, applyNow, d.LastUpdated)

	err = d.Apply(map[string]any{
		"facts": []any{
			map[string]any{"source": "document", "fact": "Clauza 4.2 interzice subinchirierea", "timestamp": "2025-01-02T10:00:00Z"},
			map[string]any{"source": "user", "fact": "Chiriasul a subinchiriat din aprilie"},
		},
	}, applyNow.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, d.Facts, 3)
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), d.Facts[1].Timestamp)
	assert.Equal(t, "Contractul a fost semnat pe 2024-03-01", d.Facts[0].Fact, "existing entries untouched")
}

func TestApplyTypedElements(t *testing.T) {
	d := &Details{}
	err := d.Apply(map[string]any{
		"facts": []Fact{{Source: "assistant", Fact: "typed append"}},
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.Facts, 1)
	assert.Equal(t, applyNow, d.Facts[0].Timestamp)
}

func TestApplyReplaceMarker(t *testing.T) {
	d := &Details{
		Objectives: []Objective{{Objective: "Recuperare garantie", Status: ObjectivePending}},
	}

	err := d.Apply(map[string]any{
		"objectives": Replace([]any{
			map[string]any{"objective": "Evacuare chirias", "status": "pending"},
		}),
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.Objectives, 1)
	assert.Equal(t, "Evacuare chirias", d.Objectives[0].Objective)
}

func TestApplyObjectiveStatusEnum(t *testing.T) {
	d := &Details{}

	err := d.Apply(map[string]any{
		"objectives": map[string]any{"objective": "Recuperare garantie"},
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.Objectives, 1)
	assert.Equal(t, ObjectivePending, d.Objectives[0].Status, "missing status defaults to pending")

	err = d.Apply(map[string]any{
		"objectives": map[string]any{"objective": "Evacuare", "status": "blocked"},
	}, applyNow)
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "blocked")
	assert.Len(t, d.Objectives, 1, "invalid element rejected before commit")
}

func TestApplyPartiesInvolved(t *testing.T) {
	d := &Details{}

	err := d.Apply(map[string]any{
		"parties_involved": []any{
			map[string]any{"party_id": "party-1", "role_in_case": "reclamant"},
		},
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.Parties, 1)
	assert.Equal(t, "reclamant", d.Parties[0].RoleInCase)

	err = d.Apply(map[string]any{
		"parties_involved": map[string]any{"role_in_case": "parat"},
	}, applyNow)
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "party_id")
}

func TestApplyRejectsReplaceOnAppendOnly(t *testing.T) {
	for _, path := range []string{"facts", "timeline", "internal_notes", "summary.history", "agent_interactions.log"} {
		t.Run(path, func(t *testing.T) {
			d := &Details{}
			err := d.Apply(map[string]any{path: Replace([]any{})}, applyNow)
			var pe *PathError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, path, pe.Path)
			assert.Contains(t, pe.Reason, "append-only")
		})
	}
}

func TestApplySummaryPushesHistory(t *testing.T) {
	d := &Details{}

	require.NoError(t, d.Apply(map[string]any{"summary": "Litigiu de chirie, faza initiala"}, applyNow))
	assert.Equal(t, "Litigiu de chirie, faza initiala", d.Summary.Current)
	assert.Empty(t, d.Summary.History, "first summary replaces nothing")

	later := applyNow.Add(time.Hour)
	require.NoError(t, d.Apply(map[string]any{"summary.current": "Litigiu de chirie, notificare trimisa"}, later))
	assert.Equal(t, "Litigiu de chirie, notificare trimisa", d.Summary.Current)
	require.Len(t, d.Summary.History, 1)
	assert.Equal(t, "Litigiu de chirie, faza initiala", d.Summary.History[0].Text)
	assert.Equal(t, later, d.Summary.History[0].ReplacedAt)
}

func TestApplyActiveInfoRequest(t *testing.T) {
	d := &Details{}

	require.NoError(t, d.Apply(map[string]any{
		"agent_interactions.active_info_request_to_user": "Care este CNP-ul reclamantului?",
	}, applyNow))
	assert.Equal(t, "Care este CNP-ul reclamantului?", d.AgentInteractions.ActiveInfoRequestToUser)

	require.NoError(t, d.Apply(map[string]any{
		"agent_interactions.active_info_request_to_user": "",
	}, applyNow))
	assert.Empty(t, d.AgentInteractions.ActiveInfoRequestToUser)
}

func TestApplyDocumentsAnalysis(t *testing.T) {
	d := &Details{}

	err := d.Apply(map[string]any{
		"documents_analysis.doc-1": map[string]any{
			"summary":    "Contract de inchiriere pe 2 ani",
			"key_points": []any{"clauza 4.2 interzice subinchirierea"},
		},
	}, applyNow)
	require.NoError(t, err)
	got, ok := d.DocumentsAnalysis["doc-1"]
	require.True(t, ok)
	assert.Equal(t, "Contract de inchiriere pe 2 ani", got.Summary)
	assert.Equal(t, applyNow, got.AnalyzedAt)

	// Whole-map update merges by key and leaves others alone.
	err = d.Apply(map[string]any{
		"documents_analysis": map[string]any{
			"doc-2": map[string]any{"summary": "Notificare de reziliere"},
		},
	}, applyNow)
	require.NoError(t, err)
	assert.Len(t, d.DocumentsAnalysis, 2)

	err = d.Apply(map[string]any{
		"documents_analysis": Replace(map[string]any{
			"doc-3": map[string]any{"summary": "Expertiza tehnica"},
		}),
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.DocumentsAnalysis, 1)
	assert.Contains(t, d.DocumentsAnalysis, "doc-3")
}

func TestApplyLegalResearch(t *testing.T) {
	d := &Details{}
	err := d.Apply(map[string]any{
		"legal_research.legislation": map[string]any{
			"doc_id":  "leg-1831",
			"title":   "Codul civil art. 1831",
			"summary": "Evacuarea chiriasului...",
		},
		"legal_research.jurisprudence": []any{
			map[string]any{"doc_id": "jur-12-2020", "title": "ICCJ decizia 12/2020"},
		},
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.LegalResearch.Legislation, 1)
	require.Len(t, d.LegalResearch.Jurisprudence, 1)
	assert.Equal(t, ResearchConsidered, d.LegalResearch.Legislation[0].Status, "new citations land as considered")
	assert.Equal(t, applyNow, d.LegalResearch.Legislation[0].FetchedAt)

	err = d.Apply(map[string]any{
		"legal_research.legislation": map[string]any{"title": "fara doc_id"},
	}, applyNow)
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "doc_id")

	err = d.Apply(map[string]any{
		"legal_research.legislation": Replace([]any{
			map[string]any{"doc_id": "leg-1831", "title": "Codul civil art. 1831", "status": "applied"},
		}),
	}, applyNow)
	require.NoError(t, err, "prune rewrites statuses via replace")
	require.Len(t, d.LegalResearch.Legislation, 1)
	assert.Equal(t, ResearchApplied, d.LegalResearch.Legislation[0].Status)
}

func TestApplyAtomicOnBadPath(t *testing.T) {
	d := &Details{Facts: []Fact{{Source: "user", Fact: "existing", Timestamp: applyNow}}}
	before := cloneDetails(t, d)

	err := d.Apply(map[string]any{
		"facts":        map[string]any{"source": "user", "fact": "would be appended"},
		"nonsense.key": "value",
	}, applyNow.Add(time.Hour))
	var pe *PathError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "nonsense.key", pe.Path)

	if diff := cmp.Diff(before, d); diff != "" {
		t.Errorf("details changed despite failed batch (-want +got):\n%s", diff)
	}
}

func TestApplyEmptyBatchIsNoOp(t *testing.T) {
	d := &Details{
		Summary: Summary{Current: "ceva"},
		Facts:   []Fact{{Source: "user", Fact: "existing", Timestamp: applyNow}},
	}
	before := cloneDetails(t, d)

	require.NoError(t, d.Apply(map[string]any{}, applyNow.Add(time.Hour)))

	if diff := cmp.Diff(before, d); diff != "" {
		t.Errorf("empty batch must leave details byte-identical (-want +got):\n%s", diff)
	}
	assert.True(t, d.LastUpdated.Equal(before.LastUpdated))
}

func TestApplyJournalEntryDefaults(t *testing.T) {
	d := &Details{}
	err := d.Apply(map[string]any{
		"agent_interactions.log": map[string]any{
			"kind":    "tool",
			"tool":    "research_query",
			"summary": "2 legislation hits",
		},
	}, applyNow)
	require.NoError(t, err)
	require.Len(t, d.AgentInteractions.Log, 1)
	entry := d.AgentInteractions.Log[0]
	assert.NotEmpty(t, entry.ID, "journal entries get generated ids")
	assert.Equal(t, applyNow, entry.Timestamp)
}

func TestApplyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("facts only ever grow and keep their prefix", prop.ForAll(
		func(texts []string) bool {
			d := &Details{}
			for i, txt := range texts {
				prev := len(d.Facts)
				err := d.Apply(map[string]any{
					"facts": map[string]any{"source": "user", "fact": txt},
				}, applyNow)
				if err != nil || len(d.Facts) != prev+1 {
					return false
				}
				if d.Facts[i].Fact != txt {
					return false
				}
			}
			for i, txt := range texts {
				if d.Facts[i].Fact != txt {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("replace is always rejected on append-only paths", prop.ForAll(
		func(path string) bool {
			d := &Details{}
			err := d.Apply(map[string]any{path: Replace([]any{})}, applyNow)
			var pe *PathError
			return errors.As(err, &pe)
		},
		gen.OneConstOf("facts", "timeline", "internal_notes", "summary.history", "agent_interactions.log"),
	))

	properties.Property("summary history length equals number of non-empty replacements", prop.ForAll(
		func(summaries []string) bool {
			d := &Details{}
			replaced := 0
			for _, s := range summaries {
				if d.Summary.Current != "" {
					replaced++
				}
				if err := d.Apply(map[string]any{"summary": s}, applyNow); err != nil {
					return false
				}
			}
			return len(d.Summary.History) == replaced
		},
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
