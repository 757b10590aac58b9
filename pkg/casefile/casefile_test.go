package casefile

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"tier pending to payment pending", StatusTierPending, StatusPaymentPending, true},
		{"tier pending straight to active", StatusTierPending, StatusActive, true},
		{"payment pending to active", StatusPaymentPending, StatusActive, true},
		{"active to paused", StatusActive, StatusPausedSupport, true},
		{"active to archived", StatusActive, StatusArchived, true},
		{"active to deleted", StatusActive, StatusDeleted, true},
		{"no skip from payment pending to paused", StatusPaymentPending, StatusPausedSupport, false},
		{"no reverse from active", StatusActive, StatusTierPending, false},
		{"paused is terminal for the agent", StatusPausedSupport, StatusActive, false},
		{"archived is terminal", StatusArchived, StatusActive, false},
		{"deleted is terminal", StatusDeleted, StatusActive, false},
		{"self transition rejected", StatusActive, StatusActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCaseTransition(t *testing.T) {
	c := &Case{ID: "case-1", Status: StatusTierPending}

	require.NoError(t, c.Transition(StatusPaymentPending))
	assert.Equal(t, StatusPaymentPending, c.Status)

	err := c.Transition(StatusPausedSupport)
	require.Error(t, err)
	assert.Equal(t, StatusPaymentPending, c.Status, "failed transition must not change status")

	require.NoError(t, c.Transition(StatusActive))
	require.NoError(t, c.Transition(StatusArchived))
	require.Error(t, c.Transition(StatusActive))
}

func TestCaseHasParty(t *testing.T) {
	c := &Case{
		AttachedParties: []AttachedParty{
			{PartyID: "party-1", Role: "client"},
			{PartyID: "party-2", Role: "opposing"},
		},
	}
	assert.True(t, c.HasParty("party-1"))
	assert.True(t, c.HasParty("party-2"))
	assert.False(t, c.HasParty("party-3"))
}

func TestCasePaymentFor(t *testing.T) {
	c := &Case{
		Payments: []PaymentRecord{
			{EventID: "evt-1", Tier: 2, PaidAt: time.Now()},
		},
	}
	assert.True(t, c.PaymentFor(2))
	assert.False(t, c.PaymentFor(3))
}

func TestDraftByName(t *testing.T) {
	d := &Details{
		Drafts: []Draft{
			{DraftID: "d-1", Name: "cerere_chemare_judecata", Revision: 1},
			{DraftID: "d-2", Name: "cerere_chemare_judecata", Revision: 2},
			{DraftID: "d-3", Name: "intampinare", Revision: 1},
		},
	}

	got := d.DraftByName("cerere_chemare_judecata")
	require.NotNil(t, got)
	assert.Equal(t, "d-2", got.DraftID)
	assert.Equal(t, 2, got.Revision)

	assert.Nil(t, d.DraftByName("contract"))
}

func TestStatusMachineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genStatus := gen.OneConstOf(
		string(StatusTierPending), string(StatusPaymentPending), string(StatusActive),
		string(StatusPausedSupport), string(StatusArchived), string(StatusDeleted),
	)

	properties.Property("only pre-terminal states have exits", prop.ForAll(
		func(from, to string) bool {
			if !CanTransition(Status(from), Status(to)) {
				return true
			}
			switch Status(from) {
			case StatusTierPending, StatusPaymentPending, StatusActive:
				return true
			}
			return false
		},
		genStatus, genStatus,
	))

	properties.Property("no edge ever re-enters active from a terminal state", prop.ForAll(
		func(from string) bool {
			switch Status(from) {
			case StatusPausedSupport, StatusArchived, StatusDeleted:
				return !CanTransition(Status(from), StatusActive)
			}
			return true
		},
		genStatus,
	))

	properties.TestingRun(t)
}
