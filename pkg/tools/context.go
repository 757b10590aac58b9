package tools

import (
	"context"

	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/fault"
)

// GetCaseContextParams identifies the case to snapshot.
type GetCaseContextParams struct {
	CaseID string `json:"case_id" jsonschema:"minLength=1,description=Identificatorul dosarului"`
}

// GetCaseContextResult is the full case snapshot: record plus context tree.
type GetCaseContextResult struct {
	Case    any `json:"case"`
	Details any `json:"details"`
}

type getCaseContextTool struct {
	store casestore.Store
	info  Descriptor
}

func newGetCaseContext(store casestore.Store) *getCaseContextTool {
	return &getCaseContextTool{
		store: store,
		info: Descriptor{
			Name:            NameGetCaseContext,
			Description:     "Citește dosarul complet: fișa dosarului și arborele de context (rezumat, fapte, obiective, cercetare, documente, jurnal).",
			ParameterSchema: mustSchema(&GetCaseContextParams{}),
			ResultSchema:    mustSchema(&GetCaseContextResult{}),
			ErrorTaxonomy:   []fault.Kind{fault.Validation, fault.NotFound, fault.TransientBackend, fault.PermanentBackend},
			Idempotent:      true,
		},
	}
}

func (t *getCaseContextTool) Name() string     { return t.info.Name }
func (t *getCaseContextTool) Info() Descriptor { return t.info }

func (t *getCaseContextTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p GetCaseContextParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	c, details, _, err := t.store.Load(ctx, p.CaseID)
	if err != nil {
		return Result{}, err
	}
	value, err := toValueMap(t.Name(), GetCaseContextResult{Case: c, Details: details})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}

// UpdateCaseContextParams carries a dot-path update batch for the context
// tree.
type UpdateCaseContextParams struct {
	CaseID  string         `json:"case_id" jsonschema:"minLength=1,description=Identificatorul dosarului"`
	Updates map[string]any `json:"updates" jsonschema:"description=Actualizări pe căi din arborele de context (ex. summary sau facts)"`
}

// UpdateCaseContextResult acknowledges the applied batch.
type UpdateCaseContextResult struct {
	OK           bool     `json:"ok"`
	UpdatedPaths []string `json:"updated_paths"`
}

type updateCaseContextTool struct {
	store casestore.Store
	info  Descriptor
}

func newUpdateCaseContext(store casestore.Store) *updateCaseContextTool {
	return &updateCaseContextTool{
		store: store,
		info: Descriptor{
			Name:            NameUpdateCaseContext,
			Description:     "Aplică un lot de actualizări pe arborele de context al dosarului. Lotul este atomic, se consemnează în jurnal și actualizează last_updated.",
			ParameterSchema: mustSchema(&UpdateCaseContextParams{}),
			ResultSchema:    mustSchema(&UpdateCaseContextResult{}),
			ErrorTaxonomy:   []fault.Kind{fault.Validation, fault.NotFound, fault.TransientBackend, fault.PermanentBackend},
		},
	}
}

func (t *updateCaseContextTool) Name() string     { return t.info.Name }
func (t *updateCaseContextTool) Info() Descriptor { return t.info }

func (t *updateCaseContextTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p UpdateCaseContextParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	if len(p.Updates) == 0 {
		return Result{}, fault.New(fault.Validation, component, t.Name(),
			"updates is empty; nothing to apply", nil)
	}
	if err := t.store.ApplyUpdates(ctx, p.CaseID, p.Updates); err != nil {
		return Result{}, err
	}
	paths := make([]string, 0, len(p.Updates))
	for path := range p.Updates {
		paths = append(paths, path)
	}
	value, err := toValueMap(t.Name(), UpdateCaseContextResult{OK: true, UpdatedPaths: paths})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}
