package nodes

import (
	"context"

	"github.com/causahq/causa/pkg/orchestrator"
)

// wait parks the case without doing anything. It exists so checkpoints can
// name a harmless resume point.
type wait struct{}

func (wait) Name() string { return orchestrator.NodeWait }

func (wait) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	return orchestrator.Suspend(orchestrator.SuspendIdle, orchestrator.NodePlan, ""), nil
}
