package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
)

func TestPaymentWaitConfirmsWebhookResume(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusPaymentPending)

	res, err := paymentWait{}.Run(context.Background(), e.turn(
		orchestrator.Resume(orchestrator.ResumePaymentCompleted, map[string]any{
			"tier":     float64(2), // webhook payloads arrive JSON-decoded
			"event_id": "evt-42",
		}), nil))
	require.NoError(t, err)

	assert.Equal(t, orchestrator.ResultContinue, res.Kind)
	assert.Equal(t, orchestrator.NodePlan, res.Next)

	c := e.current()
	assert.Equal(t, casefile.StatusActive, c.Status)
	require.Len(t, c.Payments, 1)
	assert.Equal(t, "evt-42", c.Payments[0].EventID)
	assert.Equal(t, 2, c.Payments[0].Tier)
	assert.False(t, c.Payments[0].PaidAt.IsZero())
}

func TestPaymentWaitRejectsTierMismatch(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusPaymentPending)

	_, err := paymentWait{}.Run(context.Background(), e.turn(
		orchestrator.Resume(orchestrator.ResumePaymentCompleted, map[string]any{"tier": 3}), nil))
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Equal(t, casefile.StatusPaymentPending, e.current().Status)
	assert.Empty(t, e.current().Payments)
}

func TestPaymentWaitRemindsOnUserMessage(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusPaymentPending)

	res, err := paymentWait{}.Run(context.Background(), e.turn(orchestrator.UserMessage("am plătit?"), nil))
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultReply, res.Kind)
	assert.Equal(t, prompt.Canned("ro", prompt.MsgPaymentReminder), res.Text)
	assert.Empty(t, e.current().Payments)
}

func TestPaymentWaitMintsEventIDWhenMissing(t *testing.T) {
	e := newEnv(t, fakeAssistant(), fakeReasoner())
	e.seed(casefile.StatusPaymentPending)

	_, err := paymentWait{}.Run(context.Background(), e.turn(
		orchestrator.Resume(orchestrator.ResumePaymentCompleted, nil), nil))
	require.NoError(t, err)

	c := e.current()
	require.Len(t, c.Payments, 1)
	assert.NotEmpty(t, c.Payments[0].EventID)
	assert.Equal(t, casefile.StatusActive, c.Status)
}
