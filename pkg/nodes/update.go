package nodes

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/redact"
)

// updateContext applies the planner's update_only batch and goes straight
// back to planning. The journal paths are reserved for the nodes themselves;
// planner updates never reach them.
type updateContext struct{}

func (updateContext) Name() string { return orchestrator.NodeUpdateContext }

func (n updateContext) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	raw, _ := t.Inputs["updates"].(map[string]any)
	if len(raw) == 0 {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"update_only dispatched without updates", nil)
	}

	batch := make(map[string]any, len(raw)+1)
	paths := make([]string, 0, len(raw))
	for path, value := range raw {
		if strings.HasPrefix(path, "agent_interactions.") {
			continue
		}
		batch[path] = value
		paths = append(paths, path)
	}
	sort.Strings(paths)
	batch["agent_interactions.log"] = journal(journalEntry("node_run", n.Name(), "",
		fmtSummary("context updated: %s", strings.Join(paths, ", ")), nil))

	if err := t.Apply(ctx, batch); err != nil {
		if fault.KindOf(err) != fault.Validation {
			return orchestrator.NodeResult{}, err
		}
		// The batch came out of a model; a rejected one is journaled and
		// dropped, not fatal.
		slog.Warn("Update batch rejected", "case_id", t.Case.ID, "error", err)
		if err := t.Apply(ctx, map[string]any{
			"agent_interactions.log": journal(journalEntry("node_run", n.Name(), "",
				"update batch rejected",
				map[string]any{"detail": redact.Sanitize(err.Error())})),
		}); err != nil {
			return orchestrator.NodeResult{}, err
		}
	}
	return orchestrator.Continue(orchestrator.NodePlan, nil), nil
}
