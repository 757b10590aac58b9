package orchestrator

// EventKind distinguishes the two ways a request enters the machine.
type EventKind string

const (
	// EventUserMessage is a message typed by the client.
	EventUserMessage EventKind = "user_message"

	// EventResume is a system-driven continuation, e.g. a payment webhook.
	EventResume EventKind = "resume"
)

// Resume reasons carried by EventResume.
const (
	ResumePaymentCompleted = "payment_completed"
)

// Event is the trigger of one request.
type Event struct {
	Kind    EventKind
	Message string
	Reason  string
	Payload map[string]any
}

// UserMessage wraps a client message.
func UserMessage(text string) Event {
	return Event{Kind: EventUserMessage, Message: text}
}

// Resume wraps a system continuation with its payload.
func Resume(reason string, payload map[string]any) Event {
	return Event{Kind: EventResume, Reason: reason, Payload: payload}
}
