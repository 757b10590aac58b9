package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
)

func TestAskUserRecordsActiveRequest(t *testing.T) {
	question := "Când v-a fost comunicat procesul-verbal de contravenție?"
	e := newEnv(t, fakeAssistant(textResp(question)), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := askUser{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("am primit o amendă"),
			map[string]any{"question_topic": "data comunicării procesului-verbal"}))
	require.NoError(t, err)

	assert.Equal(t, orchestrator.ResultReply, res.Kind)
	assert.Equal(t, question, res.Text)

	d := e.details()
	assert.Equal(t, question, d.AgentInteractions.ActiveInfoRequestToUser,
		"the question must be recorded so the next turn can route the answer")
	entry := journalWithKind(d, "node_run")
	require.NotNil(t, entry)
	assert.Contains(t, entry.Summary, "data comunicării")

	require.Len(t, e.assistant.Requests, 1)
	assert.Equal(t, prompt.AskUserSystem("ro"), e.assistant.Requests[0].System)
	assert.Contains(t, e.assistant.Requests[0].Messages[0].Content, "data comunicării procesului-verbal")
}

func TestAskUserFallsBackToGenericTopic(t *testing.T) {
	e := newEnv(t, fakeAssistant(textResp("Ce documente aveți deja?")), fakeReasoner())
	e.seed(casefile.StatusActive)

	_, err := askUser{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("continuați"), nil))
	require.NoError(t, err)

	require.Len(t, e.assistant.Requests, 1)
	assert.Contains(t, e.assistant.Requests[0].Messages[0].Content,
		"informațiile care lipsesc")
}

func TestAskUserRejectsEmptyQuestion(t *testing.T) {
	e := newEnv(t, fakeAssistant(textResp("   \n")), fakeReasoner())
	e.seed(casefile.StatusActive)

	_, err := askUser{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("continuați"), map[string]any{"question_topic": "termene"}))
	require.Error(t, err)
	assert.Equal(t, fault.PermanentBackend, fault.KindOf(err))
	assert.True(t, errors.Is(err, errModelContract))

	assert.Empty(t, e.details().AgentInteractions.ActiveInfoRequestToUser,
		"a failed generation must not leave a half-recorded request")
}
