// Package fault defines the error taxonomy shared by the orchestrator, the
// tool layer and the HTTP surface. Components wrap failures in *Error with a
// Kind; the edge maps caller mistakes to status codes and the escalation
// ladder routes backend trouble.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure. Kinds are routing decisions, not language
// types: the same underlying error may surface as different kinds depending
// on where it was caught.
type Kind string

const (
	// Validation covers malformed caller input. Surfaced as HTTP 400.
	Validation Kind = "validation"

	// Authorization means the caller lacks access to the case. HTTP 403.
	Authorization Kind = "authorization"

	// NotFound covers unknown case, party or document ids. HTTP 404.
	NotFound Kind = "not_found"

	// TransientBackend marks a call that may succeed on retry.
	TransientBackend Kind = "transient_backend"

	// PermanentBackend marks a call that cannot succeed; escalate.
	PermanentBackend Kind = "permanent_backend"

	// PIIViolation means a prompt-bound string failed the redaction check.
	// Fatal to the request; no partial LLM call is issued.
	PIIViolation Kind = "pii_violation"

	// QuotaExceeded means a backend refused the call over a spent quota or
	// rate budget. Retrying immediately cannot help; retrying later can.
	QuotaExceeded Kind = "quota_exceeded"

	// LoopBudgetExhausted means the orchestrator hit max_nodes_per_request.
	LoopBudgetExhausted Kind = "loop_budget_exhausted"

	// DeadlineExceeded means the request deadline expired mid-operation.
	DeadlineExceeded Kind = "deadline_exceeded"
)

// Error is the structured failure carried across component boundaries.
type Error struct {
	Kind      Kind   // routing classification
	Component string // component that failed (e.g. "casestore", "llm.assistant")
	Operation string // operation that failed
	Message   string // human-readable detail, never shown to end users
	Err       error  // underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Component, e.Operation, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a structured error.
func New(kind Kind, component, operation, message string, err error) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// KindOf extracts the kind from err. Context deadline errors classify as
// DeadlineExceeded; anything unclassified is treated as permanent.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return PermanentBackend
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	return KindOf(err) == TransientBackend
}

// SkipsLadder reports whether err bypasses the escalation ladder and is
// reported immediately.
func SkipsLadder(err error) bool {
	switch KindOf(err) {
	case Validation, Authorization, NotFound, PIIViolation:
		return true
	}
	return false
}

// HTTPStatus maps a kind to the status code the HTTP surface returns when
// the failure reaches the edge unhandled.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Authorization:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case DeadlineExceeded:
		return http.StatusGatewayTimeout
	case QuotaExceeded:
		return http.StatusTooManyRequests
	case TransientBackend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
