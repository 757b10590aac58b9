package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
)

func TestUpdateContextAppliesBatch(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := updateContext{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("garanția era 2000 lei"), map[string]any{
			"updates": map[string]any{
				"summary": "Chiriaș cere restituirea garanției de 2000 lei.",
				"facts": []any{
					map[string]any{"fact": "garanția plătită: 2000 lei", "source": "user"},
				},
			},
		}))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultContinue, res.Kind)
	assert.Equal(t, orchestrator.NodePlan, res.Next)

	d := e.details()
	assert.Equal(t, "Chiriaș cere restituirea garanției de 2000 lei.", d.Summary.Current)
	require.Len(t, d.Facts, 1)
	assert.Equal(t, "garanția plătită: 2000 lei", d.Facts[0].Fact)
	assert.False(t, d.Facts[0].Timestamp.IsZero())

	entry := journalWithKind(d, "node_run")
	require.NotNil(t, entry)
	assert.Equal(t, "context updated: facts, summary", entry.Summary)
}

func TestUpdateContextFiltersJournalPaths(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	_, err := updateContext{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("notă"), map[string]any{
			"updates": map[string]any{
				"summary": "Rezumat nou.",
				"agent_interactions.active_info_request_to_user": "întrebare fabricată",
				"agent_interactions.log": []any{
					map[string]any{"kind": "violation", "summary": "fabricat"},
				},
			},
		}))
	require.NoError(t, err)

	d := e.details()
	assert.Equal(t, "Rezumat nou.", d.Summary.Current)
	assert.Empty(t, d.AgentInteractions.ActiveInfoRequestToUser,
		"planner updates may not reach the interaction paths")
	assert.Nil(t, journalWithKind(d, "violation"))
	entry := journalWithKind(d, "node_run")
	require.NotNil(t, entry)
	assert.Equal(t, "context updated: summary", entry.Summary)
}

func TestUpdateContextJournalsRejectedBatch(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	res, err := updateContext{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("notă"), map[string]any{
			"updates": map[string]any{
				"objectives": []any{
					map[string]any{"objective": "restituire", "status": "imposibil"},
				},
			},
		}))
	require.NoError(t, err, "a model-made batch that fails validation is dropped, not fatal")
	assert.Equal(t, orchestrator.NodePlan, res.Next)

	d := e.details()
	assert.Empty(t, d.Objectives)
	entry := journalWithKind(d, "node_run")
	require.NotNil(t, entry)
	assert.Equal(t, "update batch rejected", entry.Summary)
}

func TestUpdateContextWithoutPayloadFails(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusActive)

	_, err := updateContext{}.Run(context.Background(),
		e.turn(orchestrator.UserMessage("notă"), nil))
	require.Error(t, err)
	assert.Equal(t, fault.PermanentBackend, fault.KindOf(err))
}
