package tools

import (
	"context"

	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/fault"
)

// GetPartyIDParams resolves a human reference ("Popescu", "ACME SRL")
// against the case's attached parties.
type GetPartyIDParams struct {
	CaseID    string `json:"case_id" jsonschema:"minLength=1,description=Identificatorul dosarului"`
	Reference string `json:"reference" jsonschema:"minLength=1,description=Referința la parte așa cum a numit-o clientul: nume sau denumire sau e-mail"`
}

// GetPartyIDResult carries the resolved party id.
type GetPartyIDResult struct {
	PartyID string `json:"party_id"`
}

type getPartyIDTool struct {
	store  casestore.Store
	finder referenceFinder
	info   Descriptor
}

func newGetPartyIDByReference(store casestore.Store, finder referenceFinder) *getPartyIDTool {
	return &getPartyIDTool{
		store:  store,
		finder: finder,
		info: Descriptor{
			Name:            NameGetPartyIDByReference,
			Description:     "Găsește identificatorul unei părți atașate dosarului după numele sau denumirea folosită de client. Caută doar printre părțile atașate.",
			ParameterSchema: mustSchema(&GetPartyIDParams{}),
			ResultSchema:    mustSchema(&GetPartyIDResult{}),
			ErrorTaxonomy:   []fault.Kind{fault.Validation, fault.NotFound, fault.TransientBackend, fault.PermanentBackend},
			Idempotent:      true,
		},
	}
}

func (t *getPartyIDTool) Name() string     { return t.info.Name }
func (t *getPartyIDTool) Info() Descriptor { return t.info }

func (t *getPartyIDTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p GetPartyIDParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	c, _, _, err := t.store.Load(ctx, p.CaseID)
	if err != nil {
		return Result{}, err
	}
	partyID, err := t.finder.FindByReference(ctx, c.AttachedParties, p.Reference)
	if err != nil {
		return Result{}, err
	}
	value, err := toValueMap(t.Name(), GetPartyIDResult{PartyID: partyID})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}
