package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/redact"
)

// Client binds a Provider to a role and enforces the redaction gate: every
// string headed for the wire is screened against the case guard, and a hit
// aborts the call before any bytes leave the process.
type Client struct {
	role     Role
	provider Provider
}

// NewClient builds the provider named by cfg and binds it to role.
func NewClient(ctx context.Context, role Role, cfg config.LLMConfig) (*Client, error) {
	provider, err := newProvider(ctx, role, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{role: role, provider: provider}, nil
}

// NewClientWithProvider binds an existing provider. Tests use this to
// inject fakes.
func NewClientWithProvider(role Role, provider Provider) *Client {
	return &Client{role: role, provider: provider}
}

func newProvider(ctx context.Context, role Role, cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(role, cfg), nil
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(role, cfg), nil
	case config.LLMProviderGemini:
		return NewGeminiProvider(ctx, role, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}

// Role returns the bound role.
func (c *Client) Role() Role {
	return c.role
}

// Model returns the underlying model name.
func (c *Client) Model() string {
	return c.provider.Model()
}

// Close releases provider resources.
func (c *Client) Close() error {
	return c.provider.Close()
}

// Generate screens req against guard and dispatches it to the provider.
// The reasoner never sees tools; any definitions on the request are
// dropped. A screening hit returns a pii_violation fault and the provider
// is never called.
func (c *Client) Generate(ctx context.Context, guard *redact.Guard, req Request) (Response, error) {
	if err := redact.ScreenPrompt(guard, outboundTexts(req)...); err != nil {
		return Response{}, err
	}
	if c.role == RoleReasoner {
		req.Tools = nil
	}
	return c.provider.Generate(ctx, req)
}

// outboundTexts collects every string the request would put on the wire:
// the system prompt, each turn's content, and the arguments of historical
// tool calls. Tool outputs travel as turn content, so a backend that leaked
// an identifier is caught here too.
func outboundTexts(req Request) []string {
	texts := make([]string, 0, len(req.Messages)+1)
	if req.System != "" {
		texts = append(texts, req.System)
	}
	for _, msg := range req.Messages {
		if msg.Content != "" {
			texts = append(texts, msg.Content)
		}
		for _, call := range msg.ToolCalls {
			if len(call.Arguments) == 0 {
				continue
			}
			if raw, err := json.Marshal(call.Arguments); err == nil {
				texts = append(texts, string(raw))
			}
		}
	}
	return texts
}

// Pair holds both role clients.
type Pair struct {
	Assistant *Client
	Reasoner  *Client
}

// NewPair builds both role clients from configuration.
func NewPair(ctx context.Context, cfg config.LLMRolesConfig) (*Pair, error) {
	assistant, err := NewClient(ctx, RoleAssistant, cfg.Assistant)
	if err != nil {
		return nil, fmt.Errorf("assistant: %w", err)
	}
	reasoner, err := NewClient(ctx, RoleReasoner, cfg.Reasoner)
	if err != nil {
		assistant.Close()
		return nil, fmt.Errorf("reasoner: %w", err)
	}
	return &Pair{Assistant: assistant, Reasoner: reasoner}, nil
}

// Close closes both clients.
func (p *Pair) Close() error {
	var firstErr error
	for _, c := range []*Client{p.Assistant, p.Reasoner} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func resolveMaxTokens(req Request, cfg config.LLMConfig) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return cfg.MaxTokens
}

func resolveTemperature(req Request, cfg config.LLMConfig) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	if cfg.Temperature != nil {
		return *cfg.Temperature
	}
	return 0.2
}

// classifyStatus maps a provider HTTP status to a fault kind after the
// shared client has exhausted its retries. Rate limits and server errors
// stay retryable for the escalation ladder; everything else is permanent.
func classifyStatus(status int) fault.Kind {
	if status == http.StatusTooManyRequests || status >= 500 {
		return fault.TransientBackend
	}
	return fault.PermanentBackend
}
