package nodes

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/redact"
)

// analyzeDocs summarizes one attached document per run: bytes from the
// object store, text via the format parsers, a masked excerpt to the
// Assistant, and the result under documents_analysis. Uploaded documents
// legitimately contain the identifiers the guard protects, so the text is
// masked rather than screened. Unreadable uploads are recorded as such and
// the case moves on.
type analyzeDocs struct{}

func (analyzeDocs) Name() string { return orchestrator.NodeAnalyzeDocs }

type documentAnalysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

func (n analyzeDocs) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	docID := stringInput(t, "document_id")
	if docID == "" {
		docID = nextUnanalyzed(t)
	}
	if docID == "" {
		return orchestrator.Continue(orchestrator.NodePlan, nil), nil
	}

	var doc *casefile.AttachedDocument
	for i := range t.Case.AttachedDocuments {
		if t.Case.AttachedDocuments[i].DocumentID == docID {
			doc = &t.Case.AttachedDocuments[i]
			break
		}
	}
	if doc == nil {
		return orchestrator.NodeResult{}, fault.New(fault.NotFound, component, n.Name(),
			"document "+docID+" is not attached to case "+t.Case.ID, nil)
	}

	data, err := t.Services.Objects.Get(ctx, doc.ObjectPath)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	parsed, err := t.Services.Docs.Parse(ctx, doc.Name, data)
	if err != nil {
		if fault.KindOf(err) != fault.Validation {
			return orchestrator.NodeResult{}, err
		}
		if aerr := t.Apply(ctx, map[string]any{
			"documents_analysis." + docID: map[string]any{
				"name":    doc.Name,
				"summary": "Documentul nu a putut fi citit: " + redact.Sanitize(err.Error()),
			},
			"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
				fmtSummary("document unreadable: %s", doc.Name),
				map[string]any{"document_id": docID})),
		}); aerr != nil {
			return orchestrator.NodeResult{}, aerr
		}
		return n.next(t)
	}

	guard, err := t.Guard(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	text := guard.Mask(truncateText(parsed.Text, t.Services.Config.AssistantContextBudgetBytes))

	session, err := t.AssistantSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	var analysis documentAnalysis
	if err := modelJSON(ctx, t, t.Services.LLM.Assistant, n.Name(), session,
		prompt.SystemDocumentAnalysis, prompt.DocumentAnalysisUser(doc.Name, text),
		&analysis, func() string {
			if analysis.Summary == "" {
				return "câmpul summary este gol"
			}
			return ""
		}); err != nil {
		return orchestrator.NodeResult{}, err
	}

	if err := t.Apply(ctx, map[string]any{
		"documents_analysis." + docID: map[string]any{
			"name":       doc.Name,
			"summary":    analysis.Summary,
			"key_points": analysis.KeyPoints,
		},
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			fmtSummary("document analyzed: %s", doc.Name),
			map[string]any{"document_id": docID})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return n.next(t)
}

// next chains to the following unanalyzed attachment or returns to planning.
func (n analyzeDocs) next(t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	if id := nextUnanalyzed(t); id != "" {
		return orchestrator.Continue(orchestrator.NodeAnalyzeDocs, map[string]any{"document_id": id}), nil
	}
	return orchestrator.Continue(orchestrator.NodePlan, nil), nil
}

// nextUnanalyzed returns the first attachment without an analysis entry.
func nextUnanalyzed(t *orchestrator.Turn) string {
	for _, doc := range t.Case.AttachedDocuments {
		if _, ok := t.Details.DocumentsAnalysis[doc.DocumentID]; !ok {
			return doc.DocumentID
		}
	}
	return ""
}
