// Package tools is the assistant's tool surface. Each tool pairs a typed
// parameter struct with an executable body; the registry validates incoming
// arguments against the generated JSON schema, dispatches inside a trace
// span and normalizes every failure into a Result the model can read.
//
// Access to stored personal data is confined by construction: generate_draft
// is the only tool handed the party store's resolver, and it is the only
// descriptor marked PIICapable. Everything any other tool returns has been
// screened or never contained personal data in the first place.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/causahq/causa/pkg/billing"
	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/kb"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/observability"
	"github.com/causahq/causa/pkg/partystore"
	"github.com/causahq/causa/pkg/redact"
	"github.com/causahq/causa/pkg/registry"
	"github.com/causahq/causa/pkg/ticket"
)

const component = "tools"

// Tool names, also the function names offered to the assistant.
const (
	NameCheckQuota            = "check_quota"
	NameGetCaseContext        = "get_case_context"
	NameUpdateCaseContext     = "update_case_context"
	NameGetPartyIDByReference = "get_party_id_by_reference"
	NameResearchQuery         = "research_query"
	NameGenerateDraft         = "generate_draft"
	NameConsultReasoner       = "consult_reasoner"
	NameOpenSupportTicket     = "open_support_ticket"
)

// Descriptor describes one tool to the registry and to the assistant.
type Descriptor struct {
	Name            string
	Description     string
	ParameterSchema map[string]any
	ResultSchema    map[string]any

	// ErrorTaxonomy lists the kinds this tool may legitimately report.
	// Anything outside it is coerced to permanent_backend.
	ErrorTaxonomy []fault.Kind

	// PIICapable marks the tool as allowed to touch stored personal data.
	PIICapable bool

	// Idempotent marks tools safe to re-run after a mid-call deadline.
	Idempotent bool
}

// Result is the normalized tool outcome handed back to the assistant. OK
// carries Value; a failure carries its kind, a sanitized message and whether
// retrying the same call can help.
type Result struct {
	OK        bool           `json:"ok"`
	Value     map[string]any `json:"value,omitempty"`
	Kind      fault.Kind     `json:"kind,omitempty"`
	Message   string         `json:"message,omitempty"`
	Retriable bool           `json:"retriable,omitempty"`
}

// Tool is one executable capability.
type Tool interface {
	Name() string
	Info() Descriptor
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// guardSource builds the per-case redaction guard. *partystore.Store
// satisfies it; tools that only screen text depend on this instead of the
// full store.
type guardSource interface {
	GuardFor(ctx context.Context, attached []casefile.AttachedParty) (*redact.Guard, error)
}

// referenceFinder matches a human reference against attached parties.
type referenceFinder interface {
	FindByReference(ctx context.Context, attached []casefile.AttachedParty, reference string) (string, error)
}

// Deps wires the collaborators behind the standard tool set.
type Deps struct {
	Store        casestore.Store
	Parties      *partystore.Store
	Billing      billing.Service
	Tickets      ticket.Service
	Objects      objectstore.Store
	KB           kb.KnowledgeBase
	Reasoner     *llms.Client
	Orchestrator config.OrchestratorConfig
}

func (d *Deps) validate() error {
	missing := ""
	switch {
	case d.Store == nil:
		missing = "case store"
	case d.Parties == nil:
		missing = "party store"
	case d.Billing == nil:
		missing = "billing service"
	case d.Tickets == nil:
		missing = "ticket service"
	case d.Objects == nil:
		missing = "object store"
	case d.KB == nil:
		missing = "knowledge base"
	case d.Reasoner == nil:
		missing = "reasoner client"
	}
	if missing != "" {
		return fault.New(fault.Validation, component, "new_registry", missing+" is not configured", nil)
	}
	return nil
}

// Registry holds the tool set with compiled parameter schemas.
type Registry struct {
	tools   *registry.BaseRegistry[Tool]
	schemas map[string]*compiledSchema
}

// NewRegistry builds and registers the standard tool set.
func NewRegistry(deps Deps) (*Registry, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	set := []Tool{
		newCheckQuota(deps.Billing),
		newGetCaseContext(deps.Store),
		newUpdateCaseContext(deps.Store),
		newGetPartyIDByReference(deps.Store, deps.Parties),
		newResearchQuery(deps.KB, deps.Orchestrator.ResearchSummaryLimit),
		newGenerateDraft(deps.Store, deps.Parties, deps.Objects),
		newConsultReasoner(deps.Store, deps.Parties, deps.Reasoner),
		newOpenSupportTicket(deps.Store, deps.Tickets),
	}
	r := &Registry{
		tools:   registry.NewBaseRegistry[Tool](),
		schemas: make(map[string]*compiledSchema, len(set)),
	}
	for _, t := range set {
		if err := r.tools.Register(t.Name(), t); err != nil {
			return nil, fault.New(fault.Validation, component, "new_registry", err.Error(), err)
		}
		cs, err := compileSchema(t.Name(), t.Info().ParameterSchema)
		if err != nil {
			return nil, err
		}
		r.schemas[t.Name()] = cs
	}
	return r, nil
}

// Names lists the registered tool names, sorted.
func (r *Registry) Names() []string {
	return r.tools.Names()
}

// Get returns one tool.
func (r *Registry) Get(name string) (Tool, bool) {
	return r.tools.Get(name)
}

// Definitions renders the tool set for the assistant request.
func (r *Registry) Definitions() []llms.ToolDefinition {
	list := r.tools.List()
	defs := make([]llms.ToolDefinition, 0, len(list))
	for _, t := range list {
		info := t.Info()
		defs = append(defs, llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.ParameterSchema,
		})
	}
	return defs
}

// Execute runs one requested call: schema validation, dispatch inside a
// span, metrics, and failure normalization. It never returns an error; the
// assistant decides what to do with a failed Result.
func (r *Registry) Execute(ctx context.Context, call llms.ToolCall) Result {
	tool, ok := r.tools.Get(call.Name)
	if !ok {
		return failureResult(Descriptor{}, fault.New(fault.Validation, component, "execute",
			fmt.Sprintf("unknown tool %q (available: %v)", call.Name, r.tools.Names()), nil))
	}
	info := tool.Info()

	if err := r.schemas[call.Name].validate(call.Arguments); err != nil {
		return failureResult(info, fault.New(fault.Validation, component, call.Name,
			"invalid arguments: "+err.Error(), err))
	}

	tracer := observability.GetTracer(component)
	ctx, span := tracer.Start(ctx, "tool."+call.Name)
	span.SetAttributes(attribute.String("tool.name", call.Name))
	defer span.End()

	start := time.Now()
	res, err := tool.Execute(ctx, call.Arguments)
	observability.GetGlobalMetrics().RecordToolExecution(ctx, call.Name, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fault.KindOf(err)))
		return failureResult(info, err)
	}
	res.OK = true
	return res
}

// failureResult maps an execution error onto the Result contract. Kinds
// outside the tool's declared taxonomy are coerced to permanent_backend, and
// the message is masked so journals and prompts never echo an identifier.
func failureResult(info Descriptor, err error) Result {
	kind := fault.KindOf(err)
	if len(info.ErrorTaxonomy) > 0 && !taxonomyAllows(info.ErrorTaxonomy, kind) {
		kind = fault.PermanentBackend
	}
	return Result{
		OK:        false,
		Kind:      kind,
		Message:   redact.Sanitize(err.Error()),
		Retriable: kind == fault.TransientBackend,
	}
}

func taxonomyAllows(taxonomy []fault.Kind, kind fault.Kind) bool {
	for _, k := range taxonomy {
		if k == kind {
			return true
		}
	}
	return false
}

// decodeArgs maps validated arguments onto the tool's parameter struct.
// JSON numbers arrive as float64, so decoding is weakly typed.
func decodeArgs(name string, args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fault.New(fault.PermanentBackend, component, name, "building argument decoder", err)
	}
	if err := dec.Decode(args); err != nil {
		return fault.New(fault.Validation, component, name, "decoding arguments: "+err.Error(), err)
	}
	return nil
}

// toValueMap converts a typed result struct into the generic Value map via
// its JSON form.
func toValueMap(name string, v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, name, "encoding result", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fault.New(fault.PermanentBackend, component, name, "decoding result", err)
	}
	return m, nil
}
