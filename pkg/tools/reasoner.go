package tools

import (
	"context"

	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/prompt"
)

// ConsultReasonerParams carries the case digest and the precise legal
// question for the consultation model.
type ConsultReasonerParams struct {
	CaseID        string `json:"case_id" jsonschema:"minLength=1,description=Identificatorul dosarului"`
	ContextDigest string `json:"context_digest" jsonschema:"minLength=1,description=Situația la zi a dosarului"`
	Question      string `json:"question" jsonschema:"minLength=1,description=Întrebarea juridică precisă"`
}

// ConsultReasonerResult carries the consultation answer.
type ConsultReasonerResult struct {
	Response string `json:"response"`
}

type consultReasonerTool struct {
	store    casestore.Store
	guards   guardSource
	reasoner *llms.Client
	info     Descriptor
}

func newConsultReasoner(store casestore.Store, guards guardSource, reasoner *llms.Client) *consultReasonerTool {
	return &consultReasonerTool{
		store:    store,
		guards:   guards,
		reasoner: reasoner,
		info: Descriptor{
			Name:            NameConsultReasoner,
			Description:     "Consultă juristul senior (modelul de raționament) pe o întrebare de drept precisă, cu situația dosarului atașată. Folosește-l când planificarea are nevoie de o opinie juridică, nu pentru redactare.",
			ParameterSchema: mustSchema(&ConsultReasonerParams{}),
			ResultSchema:    mustSchema(&ConsultReasonerResult{}),
			ErrorTaxonomy: []fault.Kind{fault.Validation, fault.NotFound, fault.PIIViolation,
				fault.TransientBackend, fault.PermanentBackend},
		},
	}
}

func (t *consultReasonerTool) Name() string     { return t.info.Name }
func (t *consultReasonerTool) Info() Descriptor { return t.info }

func (t *consultReasonerTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p ConsultReasonerParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	c, _, _, err := t.store.Load(ctx, p.CaseID)
	if err != nil {
		return Result{}, err
	}
	guard, err := t.guards.GuardFor(ctx, c.AttachedParties)
	if err != nil {
		return Result{}, err
	}
	resp, err := t.reasoner.Generate(ctx, guard, llms.Request{
		System: prompt.SystemReasoner,
		Messages: []llms.Message{{
			Role:    llms.MessageRoleUser,
			Content: prompt.ReasonerConsultationUser(p.ContextDigest, p.Question),
		}},
		SessionID: c.ReasonerSessionID,
	})
	if err != nil {
		return Result{}, err
	}
	value, err := toValueMap(t.Name(), ConsultReasonerResult{Response: resp.Text})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}
