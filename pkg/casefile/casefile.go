// Package casefile defines the persisted shape of a case: the case record,
// the case_details context tree the agent reads and writes, and the
// processing-state checkpoint the orchestrator leaves behind when it
// suspends. The dot-path update engine in updates.go is the only sanctioned
// way to mutate the tree.
package casefile

import (
	"fmt"
	"time"
)

// Status is the macro lifecycle state of a case. Transitions are owned
// exclusively by the orchestrator and validated by CanTransition.
type Status string

const (
	StatusTierPending    Status = "tier_pending"
	StatusPaymentPending Status = "payment_pending"
	StatusActive         Status = "active"
	StatusPausedSupport  Status = "paused_support"
	StatusArchived       Status = "archived"
	StatusDeleted        Status = "deleted"
)

// transitions lists the legal forward edges of the macro FSM. There are no
// reverse edges: a paused, archived or deleted case never becomes active
// again through the agent surface.
var transitions = map[Status][]Status{
	StatusTierPending:    {StatusPaymentPending, StatusActive},
	StatusPaymentPending: {StatusActive},
	StatusActive:         {StatusPausedSupport, StatusArchived, StatusDeleted},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is one of the known case statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusTierPending, StatusPaymentPending, StatusActive,
		StatusPausedSupport, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// OwnerKind distinguishes individual users from organizations.
type OwnerKind string

const (
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
)

// Owner identifies who the case belongs to. Quota is checked against the
// owner, and case access is authorized against it.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   string    `json:"id"`
}

// AttachedParty links a party record to the case. Only party ids and roles
// live here; the PII itself stays in the party store.
type AttachedParty struct {
	PartyID string `json:"party_id"`
	Role    string `json:"role"`
}

// AttachedDocument references an uploaded attachment in the object store.
type AttachedDocument struct {
	DocumentID  string `json:"document_id"`
	Name        string `json:"name"`
	ObjectPath  string `json:"object_path"`
	ContentType string `json:"content_type"`
}

// PaymentRecord is the proof that a payment webhook was consumed for this
// case and tier. RecordPayment on the store appends one per distinct event.
type PaymentRecord struct {
	EventID string    `json:"event_id"`
	Tier    int       `json:"tier"`
	PaidAt  time.Time `json:"paid_at"`
}

// Case is the case record proper. The agent's memory lives in Details; this
// struct carries identity, lifecycle and attachment bookkeeping.
//
// Tier 0 means undecided. Session ids preserve provider-side LLM context and
// are scoped strictly to this case.
type Case struct {
	ID                 string             `json:"case_id"`
	Owner              Owner              `json:"owner"`
	Status             Status             `json:"status"`
	Tier               int                `json:"tier,omitempty"`
	AttachedParties    []AttachedParty    `json:"attached_parties,omitempty"`
	AttachedDocuments  []AttachedDocument `json:"attached_documents,omitempty"`
	AssistantSessionID string             `json:"assistant_session_id,omitempty"`
	ReasonerSessionID  string             `json:"reasoner_session_id,omitempty"`
	UserLanguage       string             `json:"user_language,omitempty"`
	Payments           []PaymentRecord    `json:"payments,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// HasParty reports whether partyID appears in the case's attached parties.
func (c *Case) HasParty(partyID string) bool {
	for _, p := range c.AttachedParties {
		if p.PartyID == partyID {
			return true
		}
	}
	return false
}

// PaymentFor reports whether a payment completion is recorded for the given
// tier.
func (c *Case) PaymentFor(tier int) bool {
	for _, p := range c.Payments {
		if p.Tier == tier {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change.
func (c *Case) Transition(to Status) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("illegal status transition %s -> %s", c.Status, to)
	}
	c.Status = to
	return nil
}
