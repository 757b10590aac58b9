package nodes

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/tools"
)

// quotaCheck gates a freshly tiered case on the owner's subscription quota.
// Quota available activates the case; otherwise it parks in payment_pending
// with a checkpoint at payment-wait for the webhook to resume.
type quotaCheck struct{}

func (quotaCheck) Name() string { return orchestrator.NodeQuotaCheck }

func (n quotaCheck) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	res := callTool(ctx, t, tools.NameCheckQuota, map[string]any{
		"owner": map[string]any{
			"kind": string(t.Case.Owner.Kind),
			"id":   t.Case.Owner.ID,
		},
		"tier": t.Case.Tier,
	})
	if !res.OK {
		return orchestrator.NodeResult{}, resultFault(tools.NameCheckQuota, res)
	}

	hasQuota, _ := res.Value["has_quota"].(bool)
	if hasQuota {
		if err := t.Services.Store.SetStatus(ctx, t.Case.ID, casefile.StatusActive); err != nil {
			return orchestrator.NodeResult{}, err
		}
		if err := t.Apply(ctx, map[string]any{
			"agent_interactions.log": journal(journalEntry("tool_call", n.Name(), tools.NameCheckQuota,
				"quota available, case activated", map[string]any{"tier": t.Case.Tier})),
		}); err != nil {
			return orchestrator.NodeResult{}, err
		}
		return orchestrator.Continue(orchestrator.NodePlan, nil), nil
	}

	if err := t.Services.Store.SetStatus(ctx, t.Case.ID, casefile.StatusPaymentPending); err != nil {
		return orchestrator.NodeResult{}, err
	}
	if err := t.Apply(ctx, map[string]any{
		"agent_interactions.log": journal(journalEntry("tool_call", n.Name(), tools.NameCheckQuota,
			"no quota left, awaiting payment", map[string]any{"tier": t.Case.Tier})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Suspend(orchestrator.SuspendAwaitingPayment, orchestrator.NodePaymentWait,
		prompt.Canned(t.Lang(), prompt.MsgPaymentRequest, t.Case.Tier)), nil
}
