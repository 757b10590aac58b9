package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/docparse"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/partystore"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/redact"
	"github.com/causahq/causa/pkg/tools"
)

// Services bundles everything nodes may touch. One instance serves the whole
// process; per-case isolation comes from the lock, not from here.
type Services struct {
	Store   casestore.Store
	Parties *partystore.Store
	Tools   *tools.Registry
	LLM     *llms.Pair
	Objects objectstore.Store
	Docs    *docparse.Registry
	Digest  *prompt.DigestBuilder
	Config  config.OrchestratorConfig
}

// Turn is the mutable state of one request against one case. Case and
// Details mirror the store and are refreshed after every applied batch;
// Scratch is volatile and dies with the request.
type Turn struct {
	Case    casefile.Case
	Details casefile.Details

	// Event is the trigger that started this request.
	Event Event

	// Inputs are the arguments handed to the current node by its
	// predecessor or by a resumed checkpoint.
	Inputs map[string]any

	// Scratch carries request-local notes between nodes, e.g. retry
	// counters. Never persisted.
	Scratch map[string]any

	Services *Services

	guard *redact.Guard
}

// Apply runs an update batch against the context tree and refreshes the
// turn's snapshot.
func (t *Turn) Apply(ctx context.Context, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := t.Services.Store.ApplyUpdates(ctx, t.Case.ID, updates); err != nil {
		return err
	}
	return t.Reload(ctx)
}

// Reload refreshes Case and Details from the store.
func (t *Turn) Reload(ctx context.Context) error {
	c, details, _, err := t.Services.Store.Load(ctx, t.Case.ID)
	if err != nil {
		return err
	}
	t.Case = c
	t.Details = details
	return nil
}

// Guard returns the case's redaction guard, built once per turn from the
// attached parties' stored values.
func (t *Turn) Guard(ctx context.Context) (*redact.Guard, error) {
	if t.guard != nil {
		return t.guard, nil
	}
	g, err := t.Services.Parties.GuardFor(ctx, t.Case.AttachedParties)
	if err != nil {
		return nil, err
	}
	t.guard = g
	return g, nil
}

// Digest renders the case digest under the configured budget.
func (t *Turn) Digest() (string, error) {
	return t.Services.Digest.Build(&t.Case, &t.Details)
}

// Lang returns the language user-facing text should use.
func (t *Turn) Lang() string {
	if t.Services.Config.SupportsLanguage(t.Case.UserLanguage) {
		return t.Case.UserLanguage
	}
	return t.Services.Config.DefaultLanguage
}

// AssistantSessionID returns the provider session for the assistant role,
// minting and persisting one on first use.
func (t *Turn) AssistantSessionID(ctx context.Context) (string, error) {
	if t.Case.AssistantSessionID != "" {
		return t.Case.AssistantSessionID, nil
	}
	id := uuid.NewString()
	if err := t.Services.Store.SetSessionIDs(ctx, t.Case.ID, id, ""); err != nil {
		return "", err
	}
	t.Case.AssistantSessionID = id
	return id, nil
}

// ReasonerSessionID returns the provider session for the reasoner role,
// minting and persisting one on first use.
func (t *Turn) ReasonerSessionID(ctx context.Context) (string, error) {
	if t.Case.ReasonerSessionID != "" {
		return t.Case.ReasonerSessionID, nil
	}
	id := uuid.NewString()
	if err := t.Services.Store.SetSessionIDs(ctx, t.Case.ID, "", id); err != nil {
		return "", err
	}
	t.Case.ReasonerSessionID = id
	return id, nil
}
