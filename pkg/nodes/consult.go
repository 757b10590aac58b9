package nodes

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/tools"
)

// consultReasoner asks the stronger model one specific question and records
// the answer as an internal note. In prune mode it instead walks the
// considered legislation and lets the reasoner mark each entry applied or
// irrelevant, which is how the research list stays bounded.
type consultReasoner struct{}

func (consultReasoner) Name() string { return orchestrator.NodeConsultReasoner }

func (n consultReasoner) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	if stringInput(t, "mode") == "prune" {
		return n.prune(ctx, t)
	}

	question := stringInput(t, "question")
	if question == "" {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"consultation requested without a question", nil)
	}
	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	// The tool reloads the case to pick up the reasoner session, so the id
	// must be persisted before the call.
	if _, err := t.ReasonerSessionID(ctx); err != nil {
		return orchestrator.NodeResult{}, err
	}

	res := callTool(ctx, t, tools.NameConsultReasoner, map[string]any{
		"case_id":        t.Case.ID,
		"context_digest": digest,
		"question":       question,
	})
	if !res.OK {
		return orchestrator.NodeResult{}, resultFault(tools.NameConsultReasoner, res)
	}
	answer, _ := res.Value["response"].(string)
	if answer == "" {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"reasoner returned an empty answer", errModelContract)
	}

	if err := t.Apply(ctx, map[string]any{
		"internal_notes": []any{map[string]any{"author": "reasoner", "text": answer}},
		"agent_interactions.log": journal(journalEntry("tool_call", n.Name(), tools.NameConsultReasoner,
			fmtSummary("reasoner consulted: %s", question), nil)),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Continue(orchestrator.NodePlan, nil), nil
}

type pruneDecision struct {
	Dispositions []pruneDisposition `json:"dispositions"`
}

type pruneDisposition struct {
	DocID  string `json:"doc_id"`
	Status string `json:"status"`
	Note   string `json:"note"`
}

// prune sends every considered legislation entry to the reasoner and applies
// the returned dispositions. Entries the reasoner skipped stay considered.
func (n consultReasoner) prune(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	var candidates []prompt.PruneCandidate
	for _, e := range t.Details.LegalResearch.Legislation {
		if e.Status == casefile.ResearchConsidered {
			candidates = append(candidates, prompt.PruneCandidate{
				DocID:   e.DocID,
				Title:   e.Title,
				Summary: e.Summary,
			})
		}
	}
	if len(candidates) == 0 {
		return orchestrator.Continue(orchestrator.NodePlan, nil), nil
	}

	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	session, err := t.ReasonerSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}

	var dec pruneDecision
	if err := modelJSON(ctx, t, t.Services.LLM.Reasoner, n.Name(), session,
		prompt.SystemReasonerPrune, prompt.ReasonerPruneUser(digest, candidates), &dec,
		func() string {
			if len(dec.Dispositions) == 0 {
				return "lista dispositions este goală"
			}
			return ""
		}); err != nil {
		return orchestrator.NodeResult{}, err
	}

	disposed := make(map[string]string, len(dec.Dispositions))
	for _, d := range dec.Dispositions {
		if d.Status == casefile.ResearchApplied || d.Status == casefile.ResearchIrrelevant {
			disposed[d.DocID] = d.Status
		}
	}

	updated := make([]casefile.ResearchEntry, len(t.Details.LegalResearch.Legislation))
	copy(updated, t.Details.LegalResearch.Legislation)
	applied, dropped := 0, 0
	for i := range updated {
		status, ok := disposed[updated[i].DocID]
		if !ok || updated[i].Status != casefile.ResearchConsidered {
			continue
		}
		updated[i].Status = status
		if status == casefile.ResearchApplied {
			applied++
		} else {
			dropped++
		}
	}

	if err := t.Apply(ctx, map[string]any{
		"legal_research.legislation": casefile.Replace(updated),
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			fmtSummary("research pruned: %d applied, %d irrelevant", applied, dropped),
			map[string]any{"mode": "prune"})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Continue(orchestrator.NodePlan, nil), nil
}
