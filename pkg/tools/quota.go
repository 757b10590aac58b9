package tools

import (
	"context"

	"github.com/causahq/causa/pkg/billing"
	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
)

// CheckQuotaParams asks billing whether an owner can open a case at a tier
// without paying.
type CheckQuotaParams struct {
	Owner OwnerParam `json:"owner" jsonschema:"description=Proprietarul dosarului"`
	Tier  int        `json:"tier" jsonschema:"minimum=1,maximum=3,description=Nivelul de complexitate stabilit pentru dosar"`
}

// OwnerParam mirrors casefile.Owner for tool arguments.
type OwnerParam struct {
	Kind string `json:"kind" jsonschema:"enum=user,enum=organization,description=Tipul proprietarului"`
	ID   string `json:"id" jsonschema:"minLength=1,description=Identificatorul proprietarului"`
}

// CheckQuotaResult reports the quota answer.
type CheckQuotaResult struct {
	HasQuota bool `json:"has_quota"`
}

type checkQuotaTool struct {
	billing billing.Service
	info    Descriptor
}

func newCheckQuota(svc billing.Service) *checkQuotaTool {
	return &checkQuotaTool{
		billing: svc,
		info: Descriptor{
			Name:            NameCheckQuota,
			Description:     "Verifică dacă proprietarul dosarului are abonament activ pentru nivelul de complexitate dat. Nu consumă cotă, doar citește.",
			ParameterSchema: mustSchema(&CheckQuotaParams{}),
			ResultSchema:    mustSchema(&CheckQuotaResult{}),
			ErrorTaxonomy:   []fault.Kind{fault.Validation, fault.QuotaExceeded, fault.TransientBackend, fault.PermanentBackend},
			Idempotent:      true,
		},
	}
}

func (t *checkQuotaTool) Name() string     { return t.info.Name }
func (t *checkQuotaTool) Info() Descriptor { return t.info }

func (t *checkQuotaTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p CheckQuotaParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	owner := casefile.Owner{Kind: casefile.OwnerKind(p.Owner.Kind), ID: p.Owner.ID}
	has, err := t.billing.CheckQuota(ctx, owner, p.Tier)
	if err != nil {
		return Result{}, err
	}
	value, err := toValueMap(t.Name(), CheckQuotaResult{HasQuota: has})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}
