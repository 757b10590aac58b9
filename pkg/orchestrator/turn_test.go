package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/partystore"
)

func newTestTurn(t *testing.T, store casestore.Store) *Turn {
	t.Helper()
	ctx := context.Background()
	c, details, _, err := store.Load(ctx, "case-1")
	require.NoError(t, err)
	return &Turn{
		Case:     c,
		Details:  details,
		Scratch:  map[string]any{},
		Services: &Services{Store: store, Config: testConfig()},
	}
}

func TestTurnLangFallsBackToDefault(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive, func(c *casefile.Case) {
		c.UserLanguage = "pt"
	})
	tr := newTestTurn(t, store)
	assert.Equal(t, "ro", tr.Lang())

	tr.Case.UserLanguage = "hu"
	assert.Equal(t, "hu", tr.Lang())
}

func TestTurnApplyRefreshesSnapshot(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	tr := newTestTurn(t, store)
	ctx := context.Background()

	require.NoError(t, tr.Apply(ctx, map[string]any{"summary": "Contestație proces-verbal de contravenție"}))
	assert.Equal(t, "Contestație proces-verbal de contravenție", tr.Details.Summary.Current)

	// An empty batch is a no-op, not an error.
	require.NoError(t, tr.Apply(ctx, nil))
}

func TestTurnMintsSessionIDsOnce(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive)
	tr := newTestTurn(t, store)
	ctx := context.Background()

	assistant, err := tr.AssistantSessionID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, assistant)

	reasoner, err := tr.ReasonerSessionID(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, reasoner)
	assert.NotEqual(t, assistant, reasoner)

	again, err := tr.AssistantSessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, assistant, again)

	c, _, _, err := store.Load(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, assistant, c.AssistantSessionID)
	assert.Equal(t, reasoner, c.ReasonerSessionID)
}

func TestTurnGuardBuildsFromAttachedParties(t *testing.T) {
	store := casestore.NewMemoryStore()
	seedCase(t, store, casefile.StatusActive, func(c *casefile.Case) {
		c.AttachedParties = []casefile.AttachedParty{{PartyID: "party-1", Role: "reclamant"}}
	})

	parties := partystore.NewMemory()
	require.NoError(t, parties.Put(context.Background(), partystore.Party{
		PartyID:    "party-1",
		Kind:       partystore.KindIndividual,
		FirstName:  "Ion",
		LastName:   "Popescu",
		NationalID: "1850101221144",
	}))

	tr := newTestTurn(t, store)
	tr.Services.Parties = parties

	g, err := tr.Guard(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, g.Screen("clientul Popescu a depus actele"))

	// Same guard instance on repeat calls.
	again, err := tr.Guard(context.Background())
	require.NoError(t, err)
	assert.Same(t, g, again)
}
