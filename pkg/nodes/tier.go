package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/redact"
)

// tierDecide classifies a fresh case into tiers 1-3 and seeds its initial
// objectives. The case stays tier_pending until the model either commits to
// a tier or asks the user for the detail it is missing.
type tierDecide struct{}

func (tierDecide) Name() string { return orchestrator.NodeTierDecide }

type tierDecision struct {
	Tier               int      `json:"tier"`
	Justification      string   `json:"justification"`
	Objectives         []string `json:"objectives"`
	ClarifyingQuestion string   `json:"clarifying_question"`
}

func (n tierDecide) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	session, err := t.AssistantSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}

	var dec tierDecision
	err = modelJSON(ctx, t, t.Services.LLM.Assistant, n.Name(), session,
		prompt.SystemTierDecision, prompt.TierDecisionUser(digest, t.Event.Message),
		&dec, func() string {
			if strings.TrimSpace(dec.ClarifyingQuestion) != "" {
				return ""
			}
			if dec.Tier < 1 || dec.Tier > 3 {
				return fmt.Sprintf("câmpul tier are valoarea %d în loc de 1, 2 sau 3", dec.Tier)
			}
			if strings.TrimSpace(dec.Justification) == "" {
				return "câmpul justification este gol"
			}
			return ""
		})
	if err != nil {
		if !errors.Is(err, errModelContract) {
			return orchestrator.NodeResult{}, err
		}
		// An unusable decision is not worth failing the case over: keep it
		// tier_pending and ask the user for more to go on.
		slog.Warn("Tier decision unusable, asking for details",
			"case_id", t.Case.ID, "error", err)
		if aerr := t.Apply(ctx, map[string]any{
			"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
				"tier decision unusable, asked user for details",
				map[string]any{"detail": redact.Sanitize(err.Error())})),
		}); aerr != nil {
			return orchestrator.NodeResult{}, aerr
		}
		return orchestrator.Reply(prompt.Canned(t.Lang(), prompt.MsgNeedDetails), nil), nil
	}

	if q := strings.TrimSpace(dec.ClarifyingQuestion); q != "" {
		if err := t.Apply(ctx, map[string]any{
			"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
				"clarification requested before committing to a tier", nil)),
		}); err != nil {
			return orchestrator.NodeResult{}, err
		}
		return orchestrator.Reply(q, nil), nil
	}

	if err := t.Services.Store.SetTier(ctx, t.Case.ID, dec.Tier); err != nil {
		return orchestrator.NodeResult{}, err
	}

	updates := map[string]any{
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			fmtSummary("tier %d: %s", dec.Tier, dec.Justification),
			map[string]any{"tier": dec.Tier})),
	}
	objectives := make([]any, 0, len(dec.Objectives))
	for _, o := range dec.Objectives {
		if o = strings.TrimSpace(o); o != "" {
			objectives = append(objectives, map[string]any{"objective": o})
		}
	}
	if len(objectives) > 0 {
		updates["objectives"] = objectives
	}
	if err := t.Apply(ctx, updates); err != nil {
		return orchestrator.NodeResult{}, err
	}

	return orchestrator.Continue(orchestrator.NodeQuotaCheck, nil), nil
}
