// Package orchestrator runs the per-case state machine. The macro state is
// the case status; the micro state is a node name. Each request enters
// through the Handler, which serializes access with the case lock, and the
// Engine then steps nodes until one of them replies, suspends or fails.
//
// The engine itself introduces no randomness and performs no I/O of its own
// beyond checkpointing: every read and write goes through the services a
// node reaches via its Turn. Model non-determinism stays inside the nodes
// that call a model.
package orchestrator

import "context"

const component = "orchestrator"

// Node names. Routing, checkpoints and the journal refer to nodes by these
// names, so they are part of the persisted surface and must stay stable.
const (
	NodeTierDecide      = "tier-decide"
	NodeQuotaCheck      = "quota-check"
	NodePaymentWait     = "payment-wait"
	NodePlan            = "plan"
	NodeAskUser         = "ask-user"
	NodeResearch        = "research"
	NodeConsultReasoner = "consult-reasoner"
	NodeDraft           = "draft"
	NodeUpdateContext   = "update-context"
	NodeAnalyzeDocs     = "analyze-docs"
	NodeHandleError     = "handle-error"
	NodeWait            = "wait"
)

// Node is one step of the state machine: a deterministic function of the
// turn, model calls aside. A node that mutates the context tree must do so
// through Turn.Apply before returning its result.
type Node interface {
	Name() string
	Run(ctx context.Context, t *Turn) (NodeResult, error)
}
