// Package nodes implements the steps of the case state machine: tier
// decision, quota and payment gating, the plan/act loop, research and
// reasoner consultations, drafting, document analysis and the error
// escalation ladder. Each node is a small deterministic unit over a
// Turn; everything model-shaped goes through the shared exchange
// helpers so contract violations are retried once and then fail the
// same way everywhere.
package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/tools"
)

const component = "nodes"

// errModelContract marks model replies that defied their JSON contract even
// after the corrective retry. Callers with a graceful fallback (the tier
// decision) test for it; everyone else lets it ride to the error handler.
var errModelContract = errors.New("model reply failed its contract")

// Standard returns the full node set the engine routes between.
func Standard() []orchestrator.Node {
	return []orchestrator.Node{
		tierDecide{},
		quotaCheck{},
		paymentWait{},
		plan{},
		askUser{},
		research{},
		consultReasoner{},
		draft{},
		updateContext{},
		analyzeDocs{},
		newHandleError(),
		wait{},
	}
}

// stringInput reads a trimmed string from the node inputs.
func stringInput(t *orchestrator.Turn, key string) string {
	v, _ := t.Inputs[key].(string)
	return strings.TrimSpace(v)
}

// intFromAny coerces the numeric shapes JSON decoding produces.
func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// journalEntry shapes one agent_interactions.log element. Kinds in use are
// node_run, tool_call, violation and escalation; the store adds its own
// context_update entry per applied batch.
func journalEntry(kind, node, tool, summary string, payload map[string]any) map[string]any {
	e := map[string]any{
		"kind":    kind,
		"node":    node,
		"summary": summary,
	}
	if tool != "" {
		e["tool"] = tool
	}
	if len(payload) > 0 {
		e["payload"] = payload
	}
	return e
}

// journal wraps entries for the agent_interactions.log update path.
func journal(entries ...map[string]any) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out
}

// callTool dispatches one registry call with a fresh id.
func callTool(ctx context.Context, t *orchestrator.Turn, name string, args map[string]any) tools.Result {
	return t.Services.Tools.Execute(ctx, llms.ToolCall{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
	})
}

// resultFault lifts a failed tool Result back into the error taxonomy so the
// engine can route it.
func resultFault(tool string, res tools.Result) error {
	return fault.New(res.Kind, "tools", tool, res.Message, nil)
}

// decodeModelJSON extracts the JSON object from a model reply that may be
// wrapped in code fences or prose.
func decodeModelJSON(node, text string, out any) error {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return fault.New(fault.PermanentBackend, component, node,
			"model reply carries no JSON object", errModelContract)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fault.New(fault.PermanentBackend, component, node,
			"model reply is not valid JSON: "+err.Error(), errModelContract)
	}
	return nil
}

// modelJSON runs one structured exchange with a single corrective retry.
// check inspects the decoded value and returns "" when it is usable or the
// problem to feed back to the model. The second failure is permanent.
func modelJSON(ctx context.Context, t *orchestrator.Turn, client *llms.Client, node, sessionID, system, user string, out any, check func() string) error {
	guard, err := t.Guard(ctx)
	if err != nil {
		return err
	}
	messages := []llms.Message{{Role: llms.MessageRoleUser, Content: user}}
	for attempt := 0; ; attempt++ {
		resp, err := client.Generate(ctx, guard, llms.Request{
			System:    system,
			Messages:  messages,
			SessionID: sessionID,
		})
		if err != nil {
			return err
		}
		// A retry decode must not inherit fields from the rejected attempt.
		reflect.ValueOf(out).Elem().SetZero()
		issue := ""
		if derr := decodeModelJSON(node, resp.Text, out); derr != nil {
			if attempt > 0 {
				return derr
			}
			issue = "răspunsul nu a fost obiectul JSON cerut"
		} else if check != nil {
			issue = check()
			if issue == "" {
				return nil
			}
			if attempt > 0 {
				return fault.New(fault.PermanentBackend, component, node,
					"model reply rejected: "+issue, errModelContract)
			}
		} else {
			return nil
		}
		messages = append(messages,
			llms.Message{Role: llms.MessageRoleAssistant, Content: resp.Text},
			llms.Message{Role: llms.MessageRoleUser, Content: "Răspunsul anterior nu poate fi folosit: " + issue +
				". Răspunde DOAR cu obiectul JSON cerut, fără alt text."},
		)
	}
}

// modelText runs one free-text exchange and returns the trimmed reply.
func modelText(ctx context.Context, t *orchestrator.Turn, client *llms.Client, sessionID, system, user string) (string, error) {
	guard, err := t.Guard(ctx)
	if err != nil {
		return "", err
	}
	resp, err := client.Generate(ctx, guard, llms.Request{
		System:    system,
		Messages:  []llms.Message{{Role: llms.MessageRoleUser, Content: user}},
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// stripFences unwraps a markdown code fence when the model insists on one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	idx := strings.IndexByte(s, '\n')
	if idx < 0 {
		return ""
	}
	s = strings.TrimSpace(s[idx+1:])
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// truncateText caps s at max bytes on a rune boundary, marking the cut.
func truncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n\n[text trunchiat]"
}

// scratchCount reads a request-local counter.
func scratchCount(t *orchestrator.Turn, key string) int {
	n, _ := t.Scratch[key].(int)
	return n
}

// bumpScratch increments a request-local counter and returns the new value.
func bumpScratch(t *orchestrator.Turn, key string) int {
	n := scratchCount(t, key) + 1
	t.Scratch[key] = n
	return n
}

// eventMessage returns the triggering user text exactly once per request.
// Later planner runs in the same request see the automatic-resume framing.
func eventMessage(t *orchestrator.Turn) string {
	if t.Event.Kind != orchestrator.EventUserMessage {
		return ""
	}
	if consumed, _ := t.Scratch["message_consumed"].(bool); consumed {
		return ""
	}
	t.Scratch["message_consumed"] = true
	return t.Event.Message
}

// fmtSummary keeps journal summaries single-line and bounded.
func fmtSummary(format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= 300 {
		return s
	}
	cut := 300
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
