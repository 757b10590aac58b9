package casefile

import "time"

// PendingAction names the node a suspended run should resume with, plus the
// inputs that node needs to pick up where it left off.
type PendingAction struct {
	Node   string         `json:"node"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// ProcessingState is the checkpoint the orchestrator persists when a run
// suspends near its deadline. Presence of a non-nil state on a case means
// the previous request did not finish; the next request resumes from
// PendingAction before considering the new message.
type ProcessingState struct {
	LastCompletedNode string         `json:"last_completed_node,omitempty"`
	PendingAction     *PendingAction `json:"pending_action,omitempty"`
	StateSavedAt      time.Time      `json:"state_saved_at"`
}
