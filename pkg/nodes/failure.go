package nodes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/tools"
)

// retryBackoffCap bounds the wait between transient retries.
const retryBackoffCap = 8 * time.Second

// handleError is the escalation ladder. Transient faults retry the failed
// node with backoff; persistent ones climb from a reasoner recovery consult
// to a user question to a support ticket. Caller-side faults and PII
// violations skip the ladder entirely and surface to the handler, which owns
// their HTTP mapping.
type handleError struct {
	retryBase time.Duration
}

func newHandleError() *handleError {
	return &handleError{retryBase: 500 * time.Millisecond}
}

func (*handleError) Name() string { return orchestrator.NodeHandleError }

func (h *handleError) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	failedNode := stringInput(t, "failed_node")
	kind := fault.Kind(stringInput(t, "kind"))
	detail := stringInput(t, "detail")
	failedInputs, _ := t.Inputs["failed_inputs"].(map[string]any)

	rebuilt := fault.New(kind, component, h.Name(), detail, nil)

	switch {
	case fault.SkipsLadder(rebuilt):
		h.journalBestEffort(ctx, t, journalEntry("violation", h.Name(), "",
			fmtSummary("%s fault in %s: %s", kind, failedNode, detail),
			map[string]any{"failed_node": failedNode, "kind": string(kind)}))
		return orchestrator.NodeResult{}, rebuilt

	case kind == fault.DeadlineExceeded:
		h.journalBestEffort(ctx, t, journalEntry("violation", h.Name(), "",
			fmtSummary("deadline exceeded in %s", failedNode),
			map[string]any{"failed_node": failedNode, "kind": string(kind)}))
		return orchestrator.NodeResult{}, rebuilt

	case kind == fault.LoopBudgetExhausted || failedNode == "":
		return h.ticket(ctx, t, failedNode, detail, rebuilt)
	}

	if kind == fault.TransientBackend {
		key := "retry:" + failedNode
		attempts := scratchCount(t, key) + 1
		if attempts < t.Services.Config.RetryAttemptsTransient {
			waited := bumpScratch(t, key)
			if err := h.backoff(ctx, waited); err != nil {
				return orchestrator.NodeResult{}, err
			}
			slog.Info("Retrying node after transient fault",
				"case_id", t.Case.ID, "node", failedNode, "attempt", waited+1)
			return orchestrator.Continue(failedNode, failedInputs), nil
		}
	}

	rung := scratchCount(t, "ladder:"+failedNode)
	bumpScratch(t, "ladder:"+failedNode)
	switch rung {
	case 0:
		return h.consultRecovery(ctx, t, failedNode, failedInputs, kind, detail)
	case 1:
		if t.Details.AgentInteractions.ActiveInfoRequestToUser != "" {
			// The user already has an open question; asking another one
			// cannot unblock this, so escalate.
			return h.ticket(ctx, t, failedNode, detail, rebuilt)
		}
		return h.askForDetails(ctx, t, failedNode)
	default:
		return h.ticket(ctx, t, failedNode, detail, rebuilt)
	}
}

// consultRecovery asks the reasoner for a way around the failure, records
// the advice and gives the failed node one more run. A failing consult is
// itself no reason to wedge the turn; the node just retries without advice
// and the next failure climbs the ladder.
func (h *handleError) consultRecovery(ctx context.Context, t *orchestrator.Turn, failedNode string, failedInputs map[string]any, kind fault.Kind, detail string) (orchestrator.NodeResult, error) {
	advice := h.recoveryAdvice(ctx, t, failedNode, kind, detail)
	if advice != "" {
		if err := t.Apply(ctx, map[string]any{
			"internal_notes": []any{map[string]any{"author": "reasoner", "text": advice}},
			"agent_interactions.log": journal(journalEntry("escalation", h.Name(), "",
				fmtSummary("recovery advice requested for %s", failedNode),
				map[string]any{"failed_node": failedNode, "kind": string(kind)})),
		}); err != nil {
			return orchestrator.NodeResult{}, err
		}
	}
	return orchestrator.Continue(failedNode, failedInputs), nil
}

func (h *handleError) recoveryAdvice(ctx context.Context, t *orchestrator.Turn, failedNode string, kind fault.Kind, detail string) string {
	digest, err := t.Digest()
	if err != nil {
		slog.Warn("Recovery consult skipped, digest unavailable", "case_id", t.Case.ID, "error", err)
		return ""
	}
	guard, err := t.Guard(ctx)
	if err != nil {
		slog.Warn("Recovery consult skipped, guard unavailable", "case_id", t.Case.ID, "error", err)
		return ""
	}
	session, err := t.ReasonerSessionID(ctx)
	if err != nil {
		slog.Warn("Recovery consult skipped, no session", "case_id", t.Case.ID, "error", err)
		return ""
	}
	user := fmt.Sprintf("Pasul %q din procesarea dosarului a eșuat cu o eroare de tip %q: %s\n\n%s\n\n"+
		"Ce abordare alternativă recomanzi pentru a debloca procesarea? Răspunde concis.",
		failedNode, kind, detail, digest)
	resp, err := t.Services.LLM.Reasoner.Generate(ctx, guard, llms.Request{
		System:    prompt.SystemReasoner,
		Messages:  []llms.Message{{Role: llms.MessageRoleUser, Content: user}},
		SessionID: session,
	})
	if err != nil {
		slog.Warn("Recovery consult failed", "case_id", t.Case.ID, "node", failedNode, "error", err)
		return ""
	}
	return resp.Text
}

// askForDetails is the non-technical rung: the user gets a plain request for
// more information, never the failure itself.
func (h *handleError) askForDetails(ctx context.Context, t *orchestrator.Turn, failedNode string) (orchestrator.NodeResult, error) {
	message := prompt.Canned(t.Lang(), prompt.MsgNeedDetails)
	if err := t.Apply(ctx, map[string]any{
		"agent_interactions.active_info_request_to_user": message,
		"agent_interactions.log": journal(journalEntry("escalation", h.Name(), "",
			"asked user for details after repeated failures",
			map[string]any{"failed_node": failedNode})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Reply(message, nil), nil
}

// ticket is the last rung: file with support, which also pauses the case.
// When even ticketing fails the original fault surfaces to the handler.
func (h *handleError) ticket(ctx context.Context, t *orchestrator.Turn, failedNode, detail string, cause error) (orchestrator.NodeResult, error) {
	description := "Procesarea automată a eșuat repetat."
	if failedNode != "" {
		description = fmt.Sprintf("Nodul %s a eșuat repetat: %s", failedNode, detail)
	}
	res := callTool(ctx, t, tools.NameOpenSupportTicket, map[string]any{
		"case_id":        t.Case.ID,
		"description":    description,
		"state_snapshot": fmt.Sprintf("status=%s tier=%d", t.Case.Status, t.Case.Tier),
	})
	if !res.OK {
		slog.Error("Support ticket could not be opened",
			"case_id", t.Case.ID, "kind", string(res.Kind), "error", res.Message)
		return orchestrator.NodeResult{}, cause
	}
	ticketID, _ := res.Value["ticket_id"].(string)

	h.journalBestEffort(ctx, t, journalEntry("escalation", h.Name(), tools.NameOpenSupportTicket,
		fmtSummary("support ticket %s opened", ticketID),
		map[string]any{"ticket_id": ticketID, "failed_node": failedNode}))
	return orchestrator.Reply(prompt.Canned(t.Lang(), prompt.MsgTicketOpened, ticketID), nil), nil
}

// backoff waits before a transient retry, honoring the context deadline.
func (h *handleError) backoff(ctx context.Context, attempt int) error {
	d := h.retryBase << (attempt - 1)
	if d > retryBackoffCap {
		d = retryBackoffCap
	}
	select {
	case <-ctx.Done():
		return fault.New(fault.DeadlineExceeded, component, "backoff",
			"context expired during retry backoff", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// journalBestEffort records an entry without letting a journaling failure
// mask the fault being handled.
func (h *handleError) journalBestEffort(ctx context.Context, t *orchestrator.Turn, entry map[string]any) {
	if err := t.Apply(ctx, map[string]any{"agent_interactions.log": journal(entry)}); err != nil {
		slog.Warn("Failure journal entry not recorded", "case_id", t.Case.ID, "error", err)
	}
}
