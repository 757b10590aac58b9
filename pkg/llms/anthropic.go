package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/httpclient"
	"github.com/causahq/causa/pkg/observability"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider speaks the messages API.
type AnthropicProvider struct {
	config     config.LLMConfig
	role       Role
	httpClient *httpclient.Client
}

// Wire mirror structs for the messages API.

type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Tools       []AnthropicTool    `json:"tools,omitempty"`
	Metadata    *AnthropicMetadata `json:"metadata,omitempty"`
}

type AnthropicMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

// AnthropicContent is a content block. Type selects which fields are live:
// "text" uses Text, "tool_use" uses ID/Name/Input, "tool_result" uses
// ToolUseID/Content. Input is a pointer so an empty argument object still
// serializes as {}.
type AnthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     *map[string]any `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type AnthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type AnthropicResponse struct {
	ID         string             `json:"id"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      AnthropicUsage     `json:"usage"`
	Error      *AnthropicError    `json:"error,omitempty"`
}

type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicProvider builds a messages API client bound to role.
func NewAnthropicProvider(role Role, cfg config.LLMConfig) *AnthropicProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryBaseMs)*time.Millisecond),
		httpclient.WithMaxDelay(time.Duration(cfg.RetryCapMs)*time.Millisecond),
		httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
	)

	return &AnthropicProvider{
		config:     cfg,
		role:       role,
		httpClient: httpClient,
	}
}

func (p *AnthropicProvider) Model() string {
	return p.config.Model
}

func (p *AnthropicProvider) Close() error {
	return nil
}

func (p *AnthropicProvider) component() string {
	return "llm." + string(p.role)
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	tracer := observability.GetTracer("causa.llm")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", "anthropic"),
			attribute.String("llm.role", string(p.role)),
			attribute.String("llm.model", p.config.Model),
		),
	)
	defer span.End()

	wireResp, err := p.makeRequest(ctx, p.buildRequest(req))
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.GetGlobalMetrics().RecordLLMCall(ctx, string(p.role), p.config.Model, duration, 0, 0, err)
		return Response{}, err
	}

	resp, err := p.parseResponse(wireResp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.GetGlobalMetrics().RecordLLMCall(ctx, string(p.role), p.config.Model, duration, 0, 0, err)
		return Response{}, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens_in", resp.TokensIn),
		attribute.Int("llm.tokens_out", resp.TokensOut),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
	)
	span.SetStatus(codes.Ok, "success")
	observability.GetGlobalMetrics().RecordLLMCall(ctx, string(p.role), p.config.Model, duration, resp.TokensIn, resp.TokensOut, nil)

	return resp, nil
}

func (p *AnthropicProvider) buildRequest(req Request) AnthropicRequest {
	wire := AnthropicRequest{
		Model:       p.config.Model,
		Messages:    buildAnthropicMessages(req.Messages),
		MaxTokens:   resolveMaxTokens(req, p.config),
		Temperature: resolveTemperature(req, p.config),
		System:      req.System,
	}

	for _, def := range req.Tools {
		wire.Tools = append(wire.Tools, AnthropicTool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Parameters,
		})
	}

	if req.SessionID != "" {
		wire.Metadata = &AnthropicMetadata{UserID: req.SessionID}
	}

	return wire
}

// buildAnthropicMessages converts neutral history to messages API turns.
// Tool results become tool_result blocks on a user turn; consecutive blocks
// with the same wire role are merged because the API requires alternating
// roles.
func buildAnthropicMessages(msgs []Message) []AnthropicMessage {
	var out []AnthropicMessage

	appendBlocks := func(role string, blocks ...AnthropicContent) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, AnthropicMessage{Role: role, Content: blocks})
	}

	for _, msg := range msgs {
		switch msg.Role {
		case MessageRoleAssistant:
			var blocks []AnthropicContent
			if msg.Content != "" {
				blocks = append(blocks, AnthropicContent{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := call.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, AnthropicContent{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Name,
					Input: &input,
				})
			}
			appendBlocks("assistant", blocks...)
		case MessageRoleTool:
			appendBlocks("user", AnthropicContent{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
			})
		default:
			appendBlocks("user", AnthropicContent{Type: "text", Text: msg.Content})
		}
	}

	return out
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request AnthropicRequest) (*AnthropicResponse, error) {
	const op = "messages"

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, p.component(), op, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, p.component(), op, "build request", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(httpReq)
	if resp == nil {
		return nil, fault.New(fault.TransientBackend, p.component(), op, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		detail := string(respBody)
		var apiResp AnthropicResponse
		if readErr == nil && json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != nil {
			detail = apiResp.Error.Message
		}
		return nil, fault.New(classifyStatus(resp.StatusCode), p.component(), op,
			fmt.Sprintf("status %d: %s", resp.StatusCode, detail), err)
	}
	if readErr != nil {
		return nil, fault.New(fault.TransientBackend, p.component(), op, "read response", readErr)
	}

	var response AnthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fault.New(fault.TransientBackend, p.component(), op, "decode response", err)
	}
	return &response, nil
}

func (p *AnthropicProvider) parseResponse(wire *AnthropicResponse) (Response, error) {
	const op = "messages"

	if wire.Error != nil {
		return Response{}, fault.New(fault.PermanentBackend, p.component(), op, wire.Error.Message, nil)
	}
	if len(wire.Content) == 0 {
		return Response{}, fault.New(fault.TransientBackend, p.component(), op, "empty content", nil)
	}

	resp := Response{
		TokensIn:  wire.Usage.InputTokens,
		TokensOut: wire.Usage.OutputTokens,
	}

	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			args := map[string]any{}
			if block.Input != nil {
				args = *block.Input
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return resp, nil
}
