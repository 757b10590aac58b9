package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/orchestrator"
)

func TestPlanDispatchesActions(t *testing.T) {
	tests := []struct {
		name       string
		decision   map[string]any
		wantNode   string
		wantInputs map[string]any
	}{
		{
			name:       "ask_user",
			decision:   map[string]any{"action": "ask_user", "question_topic": "data procesului-verbal"},
			wantNode:   orchestrator.NodeAskUser,
			wantInputs: map[string]any{"question_topic": "data procesului-verbal"},
		},
		{
			name:       "research",
			decision:   map[string]any{"action": "research", "research_topic": "termen contestație contravenție"},
			wantNode:   orchestrator.NodeResearch,
			wantInputs: map[string]any{"research_topic": "termen contestație contravenție"},
		},
		{
			name:       "consult_reasoner",
			decision:   map[string]any{"action": "consult_reasoner", "question": "Se aplică prescripția?"},
			wantNode:   orchestrator.NodeConsultReasoner,
			wantInputs: map[string]any{"question": "Se aplică prescripția?"},
		},
		{
			name:       "draft",
			decision:   map[string]any{"action": "draft", "draft_name": "plangere-contraventionala"},
			wantNode:   orchestrator.NodeDraft,
			wantInputs: map[string]any{"draft_name": "plangere-contraventionala"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, fakeAssistant(jsonResp(t, tt.decision)), fakeReasoner())
			e.seed(casefile.StatusActive)

			res, err := plan{}.Run(context.Background(), e.turn(orchestrator.UserMessage("ce facem?"), nil))
			require.NoError(t, err)

			assert.Equal(t, orchestrator.ResultContinue, res.Kind)
			assert.Equal(t, tt.wantNode, res.Next)
			assert.Equal(t, tt.wantInputs, res.Inputs)

			entry := journalWithKind(e.details(), "node_run")
			require.NotNil(t, entry)
			assert.Equal(t, orchestrator.NodePlan, entry.Node)
		})
	}
}

func TestPlanDoneRepliesWhenNothingPending(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"action": "done",
		"reply":  "Am finalizat analiza; vă aștept documentele.",
	})), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := plan{}.Run(context.Background(), e.turn(orchestrator.UserMessage("mulțumesc"), nil))
	require.NoError(t, err)

	assert.Equal(t, orchestrator.ResultReply, res.Kind)
	assert.Equal(t, "Am finalizat analiza; vă aștept documentele.", res.Text)
	assert.Equal(t, "done", res.Metadata["action"])
}

func TestPlanDoneBlockedByPendingObjectives(t *testing.T) {
	e := newEnv(t, fakeAssistant(
		jsonResp(t, map[string]any{"action": "done", "reply": "Gata."}),
		jsonResp(t, map[string]any{"action": "ask_user", "question_topic": "actele dosarului"}),
	), fakeReasoner())
	e.seed(casefile.StatusActive)
	e.apply(map[string]any{"objectives": []any{map[string]any{"objective": "Recuperarea garanției"}}})

	res, err := plan{}.Run(context.Background(), e.turn(orchestrator.UserMessage("continuă"), nil))
	require.NoError(t, err)

	assert.Equal(t, orchestrator.NodeAskUser, res.Next)
	require.Equal(t, 2, e.assistant.Calls(), "done with pending objectives is rejected once")
	assert.Contains(t, e.assistant.Requests[1].Messages[2].Content, "obiective")
}

func TestPlanAppliesInlineUpdates(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"action":         "research",
		"research_topic": "clauze abuzive",
		"updates": map[string]any{
			"summary": "Litigiu privind clauze abuzive într-un contract de credit.",
			"facts": []any{map[string]any{
				"source": "user_message",
				"fact":   "Contractul a fost semnat în 2021.",
			}},
		},
	})), fakeReasoner())
	e.seed(casefile.StatusActive)

	_, err := plan{}.Run(context.Background(), e.turn(orchestrator.UserMessage("am semnat în 2021"), nil))
	require.NoError(t, err)

	d := e.details()
	assert.Equal(t, "Litigiu privind clauze abuzive într-un contract de credit.", d.Summary.Current)
	require.Len(t, d.Facts, 1)
	assert.Equal(t, "Contractul a fost semnat în 2021.", d.Facts[0].Fact)
	assert.False(t, d.Facts[0].Timestamp.IsZero())
}

func TestPlanDropsRejectedUpdatesAndStillDispatches(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"action":         "research",
		"research_topic": "denunț unilateral",
		"updates": map[string]any{
			"objectives": []any{map[string]any{"objective": "x", "status": "imposibil"}},
		},
	})), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := plan{}.Run(context.Background(), e.turn(orchestrator.UserMessage("continuă"), nil))
	require.NoError(t, err)

	assert.Equal(t, orchestrator.NodeResearch, res.Next, "a bad update batch does not stop the action")
	d := e.details()
	assert.Empty(t, d.Objectives)
	entry := journalWithKind(d, "node_run")
	require.NotNil(t, entry)
	assert.Contains(t, entry.Summary, "rejected")
}

func TestPlanClearsAnsweredInfoRequest(t *testing.T) {
	e := newEnv(t, fakeAssistant(jsonResp(t, map[string]any{
		"action":         "research",
		"research_topic": "termene",
	})), fakeReasoner())
	e.seed(casefile.StatusActive)
	e.apply(map[string]any{"agent_interactions.active_info_request_to_user": "Când ați primit actul?"})

	_, err := plan{}.Run(context.Background(), e.turn(orchestrator.UserMessage("ieri dimineață"), nil))
	require.NoError(t, err)

	assert.Empty(t, e.details().AgentInteractions.ActiveInfoRequestToUser,
		"a user answer retires the active question")
}

func TestPlanConsumesUserMessageOnce(t *testing.T) {
	e := newEnv(t, fakeAssistant(
		jsonResp(t, map[string]any{"action": "update_only", "updates": map[string]any{"summary": "rezumat"}}),
		jsonResp(t, map[string]any{"action": "done", "reply": "Am notat."}),
	), fakeReasoner())
	e.seed(casefile.StatusActive)

	tr := e.turn(orchestrator.UserMessage("garanția era 2000 lei"), nil)
	res, err := plan{}.Run(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.NodeUpdateContext, res.Next)

	// Same turn, second planning pass: the message must not repeat.
	tr.Inputs = nil
	_, err = plan{}.Run(context.Background(), tr)
	require.NoError(t, err)

	first := e.assistant.Requests[0].Messages[0].Content
	second := e.assistant.Requests[1].Messages[0].Content
	assert.Contains(t, first, "garanția era 2000 lei")
	assert.NotContains(t, second, "garanția era 2000 lei")
	assert.Contains(t, second, "reluată automat")
}
