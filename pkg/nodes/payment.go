package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
)

// paymentWait is the resume point for payment webhooks. User messages while
// parked here get a reminder; a payment_completed resume records the payment,
// activates the case and hands over to planning.
type paymentWait struct{}

func (paymentWait) Name() string { return orchestrator.NodePaymentWait }

func (n paymentWait) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	if t.Event.Kind != orchestrator.EventResume {
		// Routing answers these before a node runs; this covers a stale
		// checkpoint replayed against an already active case.
		return orchestrator.Reply(prompt.Canned(t.Lang(), prompt.MsgPaymentReminder), nil), nil
	}

	if tier, ok := intFromAny(t.Event.Payload["tier"]); ok && tier != t.Case.Tier {
		return orchestrator.NodeResult{}, fault.New(fault.Validation, component, n.Name(),
			fmt.Sprintf("payment event is for tier %d, case expects tier %d", tier, t.Case.Tier), nil)
	}

	eventID, _ := t.Event.Payload["event_id"].(string)
	if eventID == "" {
		eventID = uuid.NewString()
	}
	if err := t.Services.Store.RecordPayment(ctx, t.Case.ID, casefile.PaymentRecord{
		EventID: eventID,
		Tier:    t.Case.Tier,
		PaidAt:  time.Now().UTC(),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	if t.Case.Status == casefile.StatusPaymentPending {
		if err := t.Services.Store.SetStatus(ctx, t.Case.ID, casefile.StatusActive); err != nil {
			return orchestrator.NodeResult{}, err
		}
	}
	if err := t.Apply(ctx, map[string]any{
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			"payment confirmed, case active",
			map[string]any{"event_id": eventID, "tier": t.Case.Tier})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Continue(orchestrator.NodePlan, nil), nil
}
