package tools

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/ticket"
)

// OpenSupportTicketParams escalates a case to the human team.
type OpenSupportTicketParams struct {
	CaseID        string `json:"case_id" jsonschema:"minLength=1,description=Identificatorul dosarului"`
	Description   string `json:"description" jsonschema:"minLength=1,description=Descrierea problemei pentru echipa de suport"`
	StateSnapshot string `json:"state_snapshot,omitempty" jsonschema:"description=Starea relevantă a dosarului la momentul escaladării"`
}

// OpenSupportTicketResult carries the ticket id.
type OpenSupportTicketResult struct {
	TicketID string `json:"ticket_id"`
}

type openSupportTicketTool struct {
	store   casestore.Store
	tickets ticket.Service
	info    Descriptor
}

func newOpenSupportTicket(store casestore.Store, tickets ticket.Service) *openSupportTicketTool {
	return &openSupportTicketTool{
		store:   store,
		tickets: tickets,
		info: Descriptor{
			Name:            NameOpenSupportTicket,
			Description:     "Deschide un tichet către echipa de suport și suspendă procesarea automată a dosarului. Ultima treaptă de escaladare.",
			ParameterSchema: mustSchema(&OpenSupportTicketParams{}),
			ResultSchema:    mustSchema(&OpenSupportTicketResult{}),
			ErrorTaxonomy:   []fault.Kind{fault.Validation, fault.NotFound, fault.TransientBackend, fault.PermanentBackend},
		},
	}
}

func (t *openSupportTicketTool) Name() string     { return t.info.Name }
func (t *openSupportTicketTool) Info() Descriptor { return t.info }

func (t *openSupportTicketTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p OpenSupportTicketParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	c, _, _, err := t.store.Load(ctx, p.CaseID)
	if err != nil {
		return Result{}, err
	}

	body := p.Description
	if p.StateSnapshot != "" {
		body += "\n\nStarea dosarului:\n" + p.StateSnapshot
	}
	ticketID, err := t.tickets.Open(ctx, "Escaladare dosar "+p.CaseID, body)
	if err != nil {
		return Result{}, err
	}

	// The ticket is already filed; a case that cannot pause (for instance
	// one a previous attempt paused) keeps the ticket either way.
	if c.Status != casefile.StatusPausedSupport {
		if err := t.store.SetStatus(ctx, p.CaseID, casefile.StatusPausedSupport); err != nil {
			return Result{}, err
		}
	}

	value, err := toValueMap(t.Name(), OpenSupportTicketResult{TicketID: ticketID})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}
