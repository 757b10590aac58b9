package orchestrator

// ResultKind tags the NodeResult union.
type ResultKind string

const (
	ResultContinue ResultKind = "continue"
	ResultReply    ResultKind = "reply"
	ResultSuspend  ResultKind = "suspend"
	ResultFail     ResultKind = "fail"
)

// Suspend reasons. awaiting_payment and idle come from nodes; deadline is
// issued by the engine when the slack window closes.
const (
	SuspendAwaitingPayment = "awaiting_payment"
	SuspendIdle            = "idle"
	SuspendDeadline        = "deadline"
)

// NodeResult is what a node hands back to the engine: proceed to another
// node, reply to the user and finish, checkpoint and suspend, or fail into
// the error handler. Exactly the fields of the tagged variant are set.
type NodeResult struct {
	Kind ResultKind

	// Continue
	Next   string
	Inputs map[string]any

	// Reply
	Text     string
	Metadata map[string]any

	// Suspend
	Reason  string
	Resume  string
	Message string

	// Fail
	Err error
}

// Continue proceeds to the named node with its inputs.
func Continue(next string, inputs map[string]any) NodeResult {
	return NodeResult{Kind: ResultContinue, Next: next, Inputs: inputs}
}

// Reply terminates the request with text for the user.
func Reply(text string, metadata map[string]any) NodeResult {
	return NodeResult{Kind: ResultReply, Text: text, Metadata: metadata}
}

// Suspend checkpoints at resumeNode and returns message to the user. The
// inputs persisted with the checkpoint are the resume node's, supplied by
// the engine for deadline suspends and empty otherwise.
func Suspend(reason, resumeNode, message string) NodeResult {
	return NodeResult{Kind: ResultSuspend, Reason: reason, Resume: resumeNode, Message: message}
}

// Fail hands err to the error handler.
func Fail(err error) NodeResult {
	return NodeResult{Kind: ResultFail, Err: err}
}

// Outcome is the terminal result of an engine run: a reply or a suspension.
type Outcome struct {
	Kind     ResultKind
	Text     string
	Metadata map[string]any
	Reason   string
}
