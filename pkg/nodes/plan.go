package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/redact"
)

// Planner actions. These are the model-facing contract; everything else in
// the machine (analyze-docs, payment-wait, handle-error) is routed in, never
// chosen by the model.
const (
	actionAskUser         = "ask_user"
	actionResearch        = "research"
	actionConsultReasoner = "consult_reasoner"
	actionDraft           = "draft"
	actionUpdateOnly      = "update_only"
	actionDone            = "done"
)

// plan is the loop driver: one Assistant exchange that picks the next action
// and carries any context updates the exchange produced.
type plan struct{}

func (plan) Name() string { return orchestrator.NodePlan }

type planDecision struct {
	Action        string         `json:"action"`
	Reason        string         `json:"reason"`
	QuestionTopic string         `json:"question_topic"`
	ResearchTopic string         `json:"research_topic"`
	Question      string         `json:"question"`
	DraftName     string         `json:"draft_name"`
	Reply         string         `json:"reply"`
	Updates       map[string]any `json:"updates"`
}

func (n plan) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	session, err := t.AssistantSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	message := eventMessage(t)

	var dec planDecision
	if err := modelJSON(ctx, t, t.Services.LLM.Assistant, n.Name(), session,
		prompt.SystemPlanner, prompt.PlannerUser(digest, message), &dec,
		func() string { return checkPlan(t, &dec) },
	); err != nil {
		return orchestrator.NodeResult{}, err
	}

	if err := n.persist(ctx, t, &dec, message); err != nil {
		return orchestrator.NodeResult{}, err
	}

	switch dec.Action {
	case actionAskUser:
		return orchestrator.Continue(orchestrator.NodeAskUser,
			map[string]any{"question_topic": dec.QuestionTopic}), nil
	case actionResearch:
		return orchestrator.Continue(orchestrator.NodeResearch,
			map[string]any{"research_topic": dec.ResearchTopic}), nil
	case actionConsultReasoner:
		return orchestrator.Continue(orchestrator.NodeConsultReasoner,
			map[string]any{"question": dec.Question}), nil
	case actionDraft:
		return orchestrator.Continue(orchestrator.NodeDraft,
			map[string]any{"draft_name": dec.DraftName}), nil
	case actionUpdateOnly:
		return orchestrator.Continue(orchestrator.NodeUpdateContext,
			map[string]any{"updates": dec.Updates}), nil
	case actionDone:
		return orchestrator.Reply(dec.Reply, map[string]any{"action": actionDone}), nil
	default:
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"planner action '"+dec.Action+"' slipped validation", nil)
	}
}

// persist writes the planner's journal entry, clears a satisfied info
// request and applies inline updates. Updates that fail validation are
// advisory and get dropped with a journaled note rather than failing the
// turn; the action dispatch must not hinge on them.
func (n plan) persist(ctx context.Context, t *orchestrator.Turn, dec *planDecision, message string) error {
	clearRequest := message != "" && t.Details.AgentInteractions.ActiveInfoRequestToUser != ""

	updates := map[string]any{
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			fmtSummary("action %s: %s", dec.Action, dec.Reason),
			map[string]any{"action": dec.Action})),
	}
	if clearRequest {
		updates["agent_interactions.active_info_request_to_user"] = ""
	}
	if dec.Action != actionUpdateOnly {
		for path, value := range dec.Updates {
			if strings.HasPrefix(path, "agent_interactions.") {
				continue
			}
			updates[path] = value
		}
	}

	err := t.Apply(ctx, updates)
	if err == nil {
		return nil
	}
	if fault.KindOf(err) != fault.Validation || len(dec.Updates) == 0 {
		return err
	}

	slog.Warn("Planner updates rejected", "case_id", t.Case.ID, "error", err)
	fallback := map[string]any{
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			"planner update batch rejected",
			map[string]any{"action": dec.Action, "detail": redact.Sanitize(err.Error())})),
	}
	if clearRequest {
		fallback["agent_interactions.active_info_request_to_user"] = ""
	}
	return t.Apply(ctx, fallback)
}

// checkPlan enforces the planner contract on a decoded decision. The return
// value is fed back to the model on the corrective retry, so it is phrased
// for the model.
func checkPlan(t *orchestrator.Turn, dec *planDecision) string {
	switch dec.Action {
	case actionAskUser:
		if strings.TrimSpace(dec.QuestionTopic) == "" {
			return "acțiunea ask_user cere câmpul question_topic"
		}
		if t.Details.AgentInteractions.ActiveInfoRequestToUser != "" {
			return "există deja o întrebare activă către client; alege altă acțiune"
		}
	case actionResearch:
		if strings.TrimSpace(dec.ResearchTopic) == "" {
			return "acțiunea research cere câmpul research_topic"
		}
	case actionConsultReasoner:
		if strings.TrimSpace(dec.Question) == "" {
			return "acțiunea consult_reasoner cere câmpul question"
		}
	case actionDraft:
		if strings.TrimSpace(dec.DraftName) == "" {
			return "acțiunea draft cere câmpul draft_name"
		}
	case actionUpdateOnly:
		if len(dec.Updates) == 0 {
			return "acțiunea update_only cere câmpul updates"
		}
	case actionDone:
		if t.Details.PendingObjectives() {
			return "există obiective cu status pending; done nu este permis încă"
		}
		if strings.TrimSpace(dec.Reply) == "" {
			return "acțiunea done cere câmpul reply"
		}
	default:
		return fmt.Sprintf("acțiunea %q nu există", dec.Action)
	}
	return ""
}
