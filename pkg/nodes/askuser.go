package nodes

import (
	"context"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
)

// askUser turns a question topic into one concrete question in the client's
// language, records it as the active info request and ends the turn with it.
type askUser struct{}

func (askUser) Name() string { return orchestrator.NodeAskUser }

func (n askUser) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	topic := stringInput(t, "question_topic")
	if topic == "" {
		topic = "informațiile care lipsesc pentru a avansa dosarul"
	}
	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	session, err := t.AssistantSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}

	question, err := modelText(ctx, t, t.Services.LLM.Assistant, session,
		prompt.AskUserSystem(t.Lang()), prompt.AskUserUser(digest, topic))
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	if question == "" {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"model returned an empty question", errModelContract)
	}

	if err := t.Apply(ctx, map[string]any{
		"agent_interactions.active_info_request_to_user": question,
		"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
			fmtSummary("question sent to user about %s", topic),
			map[string]any{"topic": topic})),
	}); err != nil {
		return orchestrator.NodeResult{}, err
	}
	return orchestrator.Reply(question, nil), nil
}
