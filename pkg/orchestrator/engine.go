package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/observability"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/redact"
	"github.com/causahq/causa/pkg/registry"
)

// Engine steps nodes until a terminal result. It owns checkpointing: a
// suspend saves the processing state, a terminal reply clears it.
type Engine struct {
	services *Services
	nodes    *registry.BaseRegistry[Node]
}

// NewEngine wires the node set onto the shared services.
func NewEngine(services *Services, nodes ...Node) (*Engine, error) {
	if services == nil || services.Store == nil {
		return nil, fault.New(fault.Validation, component, "new_engine", "case store is not configured", nil)
	}
	if services.Digest == nil {
		services.Digest = prompt.NewDigestBuilder(services.Config)
	}
	e := &Engine{
		services: services,
		nodes:    registry.NewBaseRegistry[Node](),
	}
	for _, n := range nodes {
		if err := e.nodes.Register(n.Name(), n); err != nil {
			return nil, fault.New(fault.Validation, component, "new_engine", err.Error(), err)
		}
	}
	return e, nil
}

// Run executes one request against a loaded case. The caller holds the case
// lock; the deadline on ctx is the cooperative cancellation signal.
func (e *Engine) Run(ctx context.Context, c casefile.Case, details casefile.Details, ps *casefile.ProcessingState, event Event) (Outcome, error) {
	turn := &Turn{
		Case:     c,
		Details:  details,
		Event:    event,
		Scratch:  map[string]any{},
		Services: e.services,
	}

	current, inputs, immediate, err := e.route(turn, ps)
	if err != nil {
		return Outcome{}, err
	}
	if immediate != nil {
		// Routing replied without running a node; any pending checkpoint
		// still holds (the payment reminder must not erase payment-wait).
		return *immediate, nil
	}

	cfg := e.services.Config
	lastCompleted := ""
	if ps != nil {
		lastCompleted = ps.LastCompletedNode
	}
	budgetSpent := false

	for steps := 0; ; steps++ {
		if steps >= cfg.MaxNodesPerRequest {
			budgetErr := fault.New(fault.LoopBudgetExhausted, component, "run",
				"node budget exhausted before a terminal result", nil)
			// The error handler gets exactly one run past the budget to
			// close the request; anything beyond that surfaces the fault.
			if budgetSpent {
				return Outcome{}, budgetErr
			}
			budgetSpent = true
			if current != NodeHandleError {
				inputs = failureInputs(current, inputs, budgetErr)
				current = NodeHandleError
			}
		}

		if deadline, ok := ctx.Deadline(); ok {
			slack := time.Duration(cfg.DeadlineSlackSeconds) * time.Second
			if time.Until(deadline) < slack {
				if err := e.checkpoint(ctx, turn, lastCompleted, current, inputs); err != nil {
					return Outcome{}, err
				}
				observability.GetGlobalMetrics().RecordSuspend(ctx, SuspendDeadline)
				slog.Info("Suspending before deadline", "case_id", turn.Case.ID, "pending_node", current)
				return Outcome{
					Kind:   ResultSuspend,
					Reason: SuspendDeadline,
					Text:   prompt.Canned(turn.Lang(), prompt.MsgBusy),
				}, nil
			}
		}

		node, ok := e.nodes.Get(current)
		if !ok {
			return Outcome{}, fault.New(fault.PermanentBackend, component, "run",
				"node "+current+" is not registered", nil)
		}

		turn.Inputs = inputs
		res, err := e.runNode(ctx, node, turn)
		if err != nil {
			res = Fail(err)
		}

		switch res.Kind {
		case ResultContinue:
			lastCompleted = current
			current, inputs = e.redirect(turn, res.Next, res.Inputs)

		case ResultReply:
			if err := e.services.Store.ClearProcessingState(ctx, turn.Case.ID); err != nil {
				return Outcome{}, err
			}
			return Outcome{Kind: ResultReply, Text: res.Text, Metadata: res.Metadata}, nil

		case ResultSuspend:
			if err := e.checkpoint(ctx, turn, current, res.Resume, nil); err != nil {
				return Outcome{}, err
			}
			observability.GetGlobalMetrics().RecordSuspend(ctx, res.Reason)
			return Outcome{Kind: ResultSuspend, Reason: res.Reason, Text: res.Message}, nil

		case ResultFail:
			if current == NodeHandleError {
				// The error handler itself gave up; surface its fault.
				return Outcome{}, res.Err
			}
			slog.Warn("Node failed", "case_id", turn.Case.ID, "node", current,
				"kind", string(fault.KindOf(res.Err)), "error", res.Err)
			inputs = failureInputs(current, inputs, res.Err)
			current = NodeHandleError

		default:
			return Outcome{}, fault.New(fault.PermanentBackend, component, "run",
				"node "+current+" returned an unknown result kind", nil)
		}
	}
}

// route picks the entry node. A checkpoint wins over status routing; a few
// states answer without running any node at all.
func (e *Engine) route(t *Turn, ps *casefile.ProcessingState) (string, map[string]any, *Outcome, error) {
	lang := t.Lang()

	if t.Case.Status == casefile.StatusPausedSupport {
		return "", nil, &Outcome{
			Kind: ResultReply,
			Text: prompt.Canned(lang, prompt.MsgSupportPause),
		}, nil
	}
	if t.Case.Status == casefile.StatusArchived || t.Case.Status == casefile.StatusDeleted {
		return "", nil, nil, fault.New(fault.Validation, component, "route",
			"case "+t.Case.ID+" is "+string(t.Case.Status)+" and no longer accepts events", nil)
	}
	if t.Case.Status == casefile.StatusPaymentPending && t.Event.Kind != EventResume {
		return "", nil, &Outcome{
			Kind: ResultReply,
			Text: prompt.Canned(lang, prompt.MsgPaymentReminder),
		}, nil
	}

	if ps != nil && ps.PendingAction != nil {
		pending := ps.PendingAction.Node
		if _, ok := e.nodes.Get(pending); ok {
			return pending, ps.PendingAction.Inputs, nil, nil
		}
		// A checkpoint naming a node this build no longer has falls back to
		// status routing rather than wedging the case.
		slog.Warn("Checkpoint names unknown node, rerouting by status",
			"case_id", t.Case.ID, "pending_node", pending)
	}

	switch t.Case.Status {
	case casefile.StatusTierPending:
		return NodeTierDecide, nil, nil, nil
	case casefile.StatusPaymentPending:
		return NodePaymentWait, nil, nil, nil
	case casefile.StatusActive:
		if doc := firstUnanalyzedDocument(&t.Case, &t.Details); doc != "" {
			return NodeAnalyzeDocs, map[string]any{"document_id": doc}, nil, nil
		}
		return NodePlan, nil, nil, nil
	default:
		return "", nil, nil, fault.New(fault.PermanentBackend, component, "route",
			"case "+t.Case.ID+" has unknown status '"+string(t.Case.Status)+"'", nil)
	}
}

// redirect applies the research prune rule: once considered legislation
// crosses the threshold, the next research hop becomes a reasoner prune and
// planning resumes afterwards.
func (e *Engine) redirect(t *Turn, next string, inputs map[string]any) (string, map[string]any) {
	if next != NodeResearch {
		return next, inputs
	}
	threshold := e.services.Config.ConsiderationPruneThreshold
	if threshold > 0 && t.Details.LegalResearch.ConsideredLegislation() >= threshold {
		slog.Info("Forcing research prune", "case_id", t.Case.ID,
			"considered", t.Details.LegalResearch.ConsideredLegislation(), "threshold", threshold)
		return NodeConsultReasoner, map[string]any{"mode": "prune"}
	}
	return next, inputs
}

// runNode executes one node inside a span with metrics and debug logging.
func (e *Engine) runNode(ctx context.Context, node Node, t *Turn) (NodeResult, error) {
	tracer := observability.GetTracer(component)
	ctx, span := tracer.Start(ctx, "node."+node.Name())
	span.SetAttributes(
		attribute.String("case.id", t.Case.ID),
		attribute.String("node.name", node.Name()),
	)
	defer span.End()

	start := time.Now()
	res, err := node.Run(ctx, t)
	observability.GetGlobalMetrics().RecordNodeRun(ctx, node.Name(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(fault.KindOf(err)))
		return res, err
	}
	slog.Debug("Node finished", "case_id", t.Case.ID, "node", node.Name(),
		"result", string(res.Kind), "next", res.Next)
	return res, nil
}

// checkpoint persists the resume point for the next request.
func (e *Engine) checkpoint(ctx context.Context, t *Turn, lastCompleted, pendingNode string, pendingInputs map[string]any) error {
	ps := casefile.ProcessingState{
		LastCompletedNode: lastCompleted,
		StateSavedAt:      time.Now().UTC(),
	}
	if pendingNode != "" {
		ps.PendingAction = &casefile.PendingAction{Node: pendingNode, Inputs: pendingInputs}
	}
	return e.services.Store.SaveProcessingState(ctx, t.Case.ID, ps)
}

// failureInputs packages a node failure for the error handler. Everything in
// the map must be JSON-encodable: a deadline suspend may persist it.
func failureInputs(failedNode string, failedInputs map[string]any, err error) map[string]any {
	return map[string]any{
		"failed_node":   failedNode,
		"failed_inputs": failedInputs,
		"kind":          string(fault.KindOf(err)),
		"detail":        redact.Sanitize(err.Error()),
	}
}

// firstUnanalyzedDocument returns the id of the first attachment without a
// documents_analysis entry, or "".
func firstUnanalyzedDocument(c *casefile.Case, d *casefile.Details) string {
	for _, doc := range c.AttachedDocuments {
		if _, ok := d.DocumentsAnalysis[doc.DocumentID]; !ok {
			return doc.DocumentID
		}
	}
	return ""
}
