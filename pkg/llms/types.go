// Package llms provides the two model roles behind the orchestrator: the
// assistant, which drives the node loop and may request tool calls, and the
// reasoner, a stronger text-only model consulted when the assistant cannot
// settle a legal question on its own.
//
// Providers are hand-written HTTP clients over pkg/httpclient, except
// gemini, which rides the official genai SDK. Every outgoing request passes
// the redaction gate (see Client.Generate) before any bytes leave the
// process.
package llms

import "context"

// Role names one of the two model bindings.
type Role string

const (
	// RoleAssistant is the loop-driving model. It sees tool definitions
	// and answers with text, tool calls, or both.
	RoleAssistant Role = "assistant"

	// RoleReasoner is the consultation model. Tools never reach it; the
	// client strips them before dispatch.
	RoleReasoner Role = "reasoner"
)

// MessageRole tags one turn of conversation history.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// Message is one provider-neutral turn. Tool turns carry the serialized
// tool output in Content and point back at the originating call through
// ToolCallID.
type Message struct {
	Role       MessageRole
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a tool invocation the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes a tool offered to the assistant. Parameters is a
// JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a provider-neutral generation request. MaxTokens and
// Temperature override the configured defaults when set.
type Request struct {
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64

	// SessionID is the provider-side conversation id for this case and
	// role. It rides the user/metadata field so provider-side abuse
	// systems can group traffic per case.
	SessionID string
}

// Response is a provider-neutral generation result. Text and ToolCalls may
// both be populated; the model can explain itself while requesting a call.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	TokensIn  int
	TokensOut int
}

// Provider is the wire-level client for one vendor API. Providers do not
// screen prompts; that is the Client's job.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Model() string
	Close() error
}
