package partystore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

func fixtureParties(t *testing.T, s *Store) []casefile.AttachedParty {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Party{
		PartyID:    "party-ion",
		Kind:       KindIndividual,
		FirstName:  "Ion",
		LastName:   "Popescu",
		NationalID: "1850101221144",
		Address:    "Str. Aviatorilor 12, București",
		Email:      "ion.popescu@example.com",
	}))
	require.NoError(t, s.Put(ctx, Party{
		PartyID:        "party-acme",
		Kind:           KindOrganization,
		CompanyName:    "ACME Imobiliare SRL",
		FiscalCode:     "RO18547290",
		RegistrationNo: "J40/1234/2015",
		Address:        "Bd. Unirii 1, București",
	}))
	return []casefile.AttachedParty{
		{PartyID: "party-ion", Role: "reclamant"},
		{PartyID: "party-acme", Role: "pârât"},
	}
}

func TestResolveForDraft(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	attached := fixtureParties(t, s)

	values, err := s.ResolveForDraft(ctx, "case-1", attached, "party-ion",
		[]string{"first_name", "last_name", "national_id"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"first_name":  "Ion",
		"last_name":   "Popescu",
		"national_id": "1850101221144",
	}, values)
}

func TestResolveForDraftRefusesUnattachedParty(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	attached := fixtureParties(t, s)

	require.NoError(t, s.Put(ctx, Party{
		PartyID: "party-other", Kind: KindIndividual, FirstName: "Maria", LastName: "Ionescu",
	}))

	_, err := s.ResolveForDraft(ctx, "case-1", attached, "party-other", []string{"last_name"})
	require.Error(t, err)
	assert.Equal(t, fault.Authorization, fault.KindOf(err))
}

func TestResolveForDraftRejectsUnknownAndEmptyFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	attached := fixtureParties(t, s)

	_, err := s.ResolveForDraft(ctx, "case-1", attached, "party-ion", []string{"shoe_size"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Contains(t, err.Error(), "shoe_size")

	_, err = s.ResolveForDraft(ctx, "case-1", attached, "party-ion", []string{"fiscal_code"})
	require.Error(t, err, "individuals have no fiscal code")
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestFindByReference(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	attached := fixtureParties(t, s)

	cases := []struct {
		ref  string
		want string
	}{
		{"Ion Popescu", "party-ion"},
		{"popescu ion", "party-ion"},
		{"POPESCU", "party-ion"},
		{"ion.popescu@example.com", "party-ion"},
		{"ACME Imobiliare SRL", "party-acme"},
		{"acme", "party-acme"},
	}
	for _, tc := range cases {
		got, err := s.FindByReference(ctx, attached, tc.ref)
		require.NoError(t, err, "reference %q", tc.ref)
		assert.Equal(t, tc.want, got, "reference %q", tc.ref)
	}

	_, err := s.FindByReference(ctx, attached, "Vasilescu")
	require.Error(t, err)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestFindByReferenceAmbiguous(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Put(ctx, Party{
		PartyID: "p1", Kind: KindIndividual, FirstName: "Ana", LastName: "Popescu",
	}))
	require.NoError(t, s.Put(ctx, Party{
		PartyID: "p2", Kind: KindIndividual, FirstName: "Dan", LastName: "Popescu",
	}))
	attached := []casefile.AttachedParty{{PartyID: "p1"}, {PartyID: "p2"}}

	_, err := s.FindByReference(ctx, attached, "Popescu")
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	got, err := s.FindByReference(ctx, attached, "Ana Popescu")
	require.NoError(t, err)
	assert.Equal(t, "p1", got)
}

func TestFindByReferenceIgnoresUnattachedRecords(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Put(ctx, Party{
		PartyID: "p1", Kind: KindIndividual, FirstName: "Ana", LastName: "Popescu",
	}))

	_, err := s.FindByReference(ctx, nil, "Ana Popescu")
	require.Error(t, err)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestPutValidates(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.Put(ctx, Party{Kind: KindIndividual, LastName: "Popescu"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	err = s.Put(ctx, Party{PartyID: "p1", Kind: "robot"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestSensitiveValues(t *testing.T) {
	p := Party{
		PartyID:    "p1",
		Kind:       KindIndividual,
		FirstName:  "Ion",
		LastName:   "Popescu",
		NationalID: "1850101221144",
	}
	assert.ElementsMatch(t, []string{"Ion", "Popescu", "1850101221144"}, p.SensitiveValues())
}

func TestSQLBackendSQLite(t *testing.T) {
	cfg := &config.StoreConfig{
		Backend: config.StoreBackendSQLite,
		DSN:     filepath.Join(t.TempDir(), "parties.db"),
	}
	cfg.SetDefaults("parties")

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	attached := fixtureParties(t, s)

	p, err := s.Get(ctx, "party-acme")
	require.NoError(t, err)
	assert.Equal(t, "RO18547290", p.FiscalCode)

	// Put replaces.
	p.Address = "Bd. Unirii 2, București"
	require.NoError(t, s.Put(ctx, p))
	p, err = s.Get(ctx, "party-acme")
	require.NoError(t, err)
	assert.Equal(t, "Bd. Unirii 2, București", p.Address)

	got, err := s.FindByReference(ctx, attached, "acme imobiliare srl")
	require.NoError(t, err)
	assert.Equal(t, "party-acme", got)

	_, err = s.Get(ctx, "missing")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}
