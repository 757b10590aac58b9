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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider speaks the chat completions API. A BaseURL override also
// covers OpenAI-compatible local gateways.
type OpenAIProvider struct {
	config     config.LLMConfig
	role       Role
	httpClient *httpclient.Client
}

// Wire mirror structs for the chat completions API.

type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
	Tools       []OpenAITool    `json:"tools,omitempty"`
	User        string          `json:"user,omitempty"`
}

type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type OpenAITool struct {
	Type     string             `json:"type"`
	Function OpenAIToolFunction `json:"function"`
}

type OpenAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type OpenAIResponse struct {
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
	Error   *OpenAIError   `json:"error,omitempty"`
}

type OpenAIChoice struct {
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider builds a chat completions client bound to role.
func NewOpenAIProvider(role Role, cfg config.LLMConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryBaseMs)*time.Millisecond),
		httpclient.WithMaxDelay(time.Duration(cfg.RetryCapMs)*time.Millisecond),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &OpenAIProvider{
		config:     cfg,
		role:       role,
		httpClient: httpClient,
	}
}

func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) component() string {
	return "llm." + string(p.role)
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	tracer := observability.GetTracer("causa.llm")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", "openai"),
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

func (p *OpenAIProvider) buildRequest(req Request) OpenAIRequest {
	messages := make([]OpenAIMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: req.System})
	}

	for _, msg := range req.Messages {
		wire := OpenAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == MessageRoleTool {
			wire.ToolCallID = msg.ToolCallID
			wire.Name = msg.Name
		}
		for _, call := range msg.ToolCalls {
			args, _ := json.Marshal(call.Arguments)
			wire.ToolCalls = append(wire.ToolCalls, OpenAIToolCall{
				ID:   call.ID,
				Type: "function",
				Function: OpenAIFunctionCall{
					Name:      call.Name,
					Arguments: string(args),
				},
			})
		}
		messages = append(messages, wire)
	}

	var tools []OpenAITool
	for _, def := range req.Tools {
		tools = append(tools, OpenAITool{
			Type: "function",
			Function: OpenAIToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	return OpenAIRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   resolveMaxTokens(req, p.config),
		Temperature: resolveTemperature(req, p.config),
		Tools:       tools,
		User:        req.SessionID,
	}
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request OpenAIRequest) (*OpenAIResponse, error) {
	const op = "chat_completions"

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, p.component(), op, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, p.component(), op, "build request", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	// The shared client returns the response alongside the error for
	// non-retryable statuses; classify by status when one is present.
	resp, err := p.httpClient.Do(httpReq)
	if resp == nil {
		return nil, fault.New(fault.TransientBackend, p.component(), op, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		detail := string(respBody)
		var apiResp OpenAIResponse
		if readErr == nil && json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != nil {
			detail = apiResp.Error.Message
		}
		return nil, fault.New(classifyStatus(resp.StatusCode), p.component(), op,
			fmt.Sprintf("status %d: %s", resp.StatusCode, detail), err)
	}
	if readErr != nil {
		return nil, fault.New(fault.TransientBackend, p.component(), op, "read response", readErr)
	}

	var response OpenAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fault.New(fault.TransientBackend, p.component(), op, "decode response", err)
	}
	return &response, nil
}

func (p *OpenAIProvider) parseResponse(wire *OpenAIResponse) (Response, error) {
	const op = "chat_completions"

	if wire.Error != nil {
		return Response{}, fault.New(fault.PermanentBackend, p.component(), op, wire.Error.Message, nil)
	}
	if len(wire.Choices) == 0 {
		return Response{}, fault.New(fault.TransientBackend, p.component(), op, "no choices returned", nil)
	}

	choice := wire.Choices[0]
	resp := Response{
		Text:      choice.Message.Content,
		TokensIn:  wire.Usage.PromptTokens,
		TokensOut: wire.Usage.CompletionTokens,
	}

	for _, call := range choice.Message.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return Response{}, fault.New(fault.TransientBackend, p.component(), op,
					fmt.Sprintf("tool call %s: undecodable arguments", call.Function.Name), err)
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}

	return resp, nil
}
