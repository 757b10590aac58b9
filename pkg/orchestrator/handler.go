package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/caselock"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/llms"
	"github.com/causahq/causa/pkg/observability"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/redact"
	"github.com/causahq/causa/pkg/tools"
)

// Response statuses on the wire.
const (
	StatusSuccess   = "success"
	StatusSuspended = "suspended"
	StatusBusy      = "busy"
	StatusError     = "error"
)

const defaultRequestTimeout = 120 * time.Second

// Principal is the authenticated caller, as established by the transport
// layer. Case access is decided against the case owner, never against
// request payloads.
type Principal struct {
	UserID string
	OrgIDs []string
}

// CanAccess reports whether the principal may operate on a case with the
// given owner.
func (p Principal) CanAccess(owner casefile.Owner) bool {
	if owner.ID == "" {
		return false
	}
	switch owner.Kind {
	case casefile.OwnerUser:
		return owner.ID == p.UserID
	case casefile.OwnerOrganization:
		return slices.Contains(p.OrgIDs, owner.ID)
	default:
		return false
	}
}

// Request is one inbound event for one case.
type Request struct {
	CaseID    string
	Principal Principal
	Event     Event
}

// Response is what the transport returns to the caller. HTTPStatus is advice
// for HTTP transports and stays off the wire.
type Response struct {
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	HTTPStatus int            `json:"-"`
}

// Handler is the per-request front of the engine: it loads the case,
// authorizes the caller, serializes access through the case lock and maps
// the engine outcome onto a transport-friendly response.
type Handler struct {
	engine  *Engine
	locker  caselock.Locker
	timeout time.Duration
}

// NewHandler builds a handler. timeout bounds the wall clock of a single
// request; zero picks a default.
func NewHandler(engine *Engine, locker caselock.Locker, timeout time.Duration) (*Handler, error) {
	if engine == nil {
		return nil, fault.New(fault.Validation, component, "new_handler", "engine is not configured", nil)
	}
	if locker == nil {
		return nil, fault.New(fault.Validation, component, "new_handler", "case locker is not configured", nil)
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{engine: engine, locker: locker, timeout: timeout}, nil
}

// Handle runs one event end to end. It never returns an error: every failure
// becomes a Response with a sanitized message in the client's language.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	start := time.Now()
	svc := h.engine.services
	lang := svc.Config.DefaultLanguage

	c, details, ps, err := svc.Store.Load(ctx, req.CaseID)
	if err != nil {
		return h.failure(ctx, start, req.CaseID, lang, err)
	}
	if svc.Config.SupportsLanguage(c.UserLanguage) {
		lang = c.UserLanguage
	}
	if !req.Principal.CanAccess(c.Owner) {
		return h.failure(ctx, start, req.CaseID, lang, fault.New(fault.Authorization, component, "handle",
			"principal "+req.Principal.UserID+" cannot access case "+req.CaseID, nil))
	}

	lease, err := h.locker.Acquire(ctx, req.CaseID, req.Principal.UserID)
	if err != nil {
		if errors.Is(err, caselock.ErrBusy) {
			observability.GetGlobalMetrics().RecordLockBusy(ctx)
			observability.GetGlobalMetrics().RecordRequest(ctx, StatusBusy, time.Since(start), "")
			slog.Info("Case is locked, rejecting request", "case_id", req.CaseID)
			return Response{
				Status:     StatusBusy,
				Message:    prompt.Canned(lang, prompt.MsgBusy),
				Timestamp:  time.Now().UTC(),
				HTTPStatus: http.StatusConflict,
			}
		}
		return h.failure(ctx, start, req.CaseID, lang, err)
	}
	defer func() {
		if err := h.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
			slog.Warn("Lease release failed", "case_id", req.CaseID, "error", err)
		}
	}()

	runCtx, cancel := context.WithDeadline(ctx, start.Add(h.timeout))
	defer cancel()

	outcome, err := h.engine.Run(runCtx, c, details, ps, req.Event)
	if err != nil {
		return h.failure(ctx, start, req.CaseID, lang, err)
	}

	duration := time.Since(start)
	metadata := outcome.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["execution_time_s"] = math.Round(duration.Seconds()*1000) / 1000

	switch outcome.Kind {
	case ResultReply:
		observability.GetGlobalMetrics().RecordRequest(ctx, StatusSuccess, duration, "")
		slog.Info("Request completed", "case_id", req.CaseID, "duration", duration)
		return Response{
			Status:     StatusSuccess,
			Message:    outcome.Text,
			Metadata:   metadata,
			Timestamp:  time.Now().UTC(),
			HTTPStatus: http.StatusOK,
		}
	case ResultSuspend:
		observability.GetGlobalMetrics().RecordRequest(ctx, StatusSuspended, duration, "")
		slog.Info("Request suspended", "case_id", req.CaseID, "reason", outcome.Reason, "duration", duration)
		return Response{
			Status:     StatusSuspended,
			Message:    outcome.Text,
			Reason:     outcome.Reason,
			Metadata:   metadata,
			Timestamp:  time.Now().UTC(),
			HTTPStatus: http.StatusOK,
		}
	default:
		return h.failure(ctx, start, req.CaseID, lang, fault.New(fault.PermanentBackend, component, "handle",
			"engine returned outcome kind '"+string(outcome.Kind)+"'", nil))
	}
}

// failure maps an error onto a response. Backend faults that reached this far
// escaped the in-run recovery ladder, so they escalate to a support ticket;
// the caller always sees a canned line, never backend text.
func (h *Handler) failure(ctx context.Context, start time.Time, caseID, lang string, err error) Response {
	kind := fault.KindOf(err)
	duration := time.Since(start)
	observability.GetGlobalMetrics().RecordRequest(ctx, StatusError, duration, string(kind))
	slog.Error("Request failed", "case_id", caseID, "kind", string(kind), "error", err)

	message := prompt.Canned(lang, prompt.MsgApology)
	switch kind {
	case fault.TransientBackend, fault.PermanentBackend, fault.LoopBudgetExhausted:
		if id := h.openTicket(ctx, caseID, err); id != "" {
			message = prompt.Canned(lang, prompt.MsgTicketOpened, id)
		}
	}
	return Response{
		Status:     StatusError,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		HTTPStatus: fault.HTTPStatus(kind),
	}
}

// openTicket files an escalation ticket and returns its id, or "" when even
// that fails. It runs detached from the request's cancellation so a deadline
// blowout still gets ticketed.
func (h *Handler) openTicket(ctx context.Context, caseID string, cause error) string {
	reg := h.engine.services.Tools
	if reg == nil {
		return ""
	}
	ticketCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	res := reg.Execute(ticketCtx, llms.ToolCall{
		ID:   uuid.NewString(),
		Name: tools.NameOpenSupportTicket,
		Arguments: map[string]any{
			"case_id":     caseID,
			"description": "Procesarea automată a eșuat: " + redact.Sanitize(cause.Error()),
		},
	})
	if !res.OK {
		slog.Error("Escalation ticket failed", "case_id", caseID, "kind", string(res.Kind), "detail", res.Message)
		return ""
	}
	id, _ := res.Value["ticket_id"].(string)
	return id
}
