package llms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/observability"
)

// GeminiProvider rides the official genai SDK rather than a hand-written
// client; the SDK owns its transport and retry-relevant error surface.
type GeminiProvider struct {
	client *genai.Client
	config config.LLMConfig
	role   Role
}

// NewGeminiProvider builds a genai client bound to role.
func NewGeminiProvider(ctx context.Context, role Role, cfg config.LLMConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: cfg,
		role:   role,
	}, nil
}

func (p *GeminiProvider) Model() string {
	return p.config.Model
}

func (p *GeminiProvider) Close() error {
	return nil
}

func (p *GeminiProvider) component() string {
	return "llm." + string(p.role)
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	tracer := observability.GetTracer("causa.llm")
	ctx, span := tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("llm.provider", "gemini"),
			attribute.String("llm.role", string(p.role)),
			attribute.String("llm.model", p.config.Model),
		),
	)
	defer span.End()

	contents := buildGeminiContents(req.Messages)
	genConfig := p.buildConfig(req)

	genResp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, genConfig)
	duration := time.Since(start)
	if err != nil {
		err = p.classifyError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.GetGlobalMetrics().RecordLLMCall(ctx, string(p.role), p.config.Model, duration, 0, 0, err)
		return Response{}, err
	}

	resp, err := p.parseResponse(genResp)
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

// buildGeminiContents converts neutral history to genai contents. Assistant
// turns map to role "model"; tool results ride a user turn as
// FunctionResponse parts.
func buildGeminiContents(msgs []Message) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range msgs {
		switch msg.Role {
		case MessageRoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Arguments,
					},
				})
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case MessageRoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       msg.ToolCallID,
						Name:     msg.Name,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents
}

func (p *GeminiProvider) buildConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(resolveTemperature(req, p.config))),
		MaxOutputTokens: int32(resolveMaxTokens(req, p.config)),
	}

	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	for _, def := range req.Tools {
		cfg.Tools = append(cfg.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  toGenaiSchema(def.Parameters),
			}},
		})
	}

	return cfg
}

// toGenaiSchema converts a JSON schema object to the genai schema type.
// Only the subset our tool descriptors emit is mapped.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}

	return s
}

func (p *GeminiProvider) parseResponse(genResp *genai.GenerateContentResponse) (Response, error) {
	const op = "generate_content"

	if len(genResp.Candidates) == 0 {
		return Response{}, fault.New(fault.TransientBackend, p.component(), op, "empty response", nil)
	}

	var resp Response
	candidate := genResp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				resp.Text += part.Text
			}
			if part.FunctionCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:        part.FunctionCall.ID,
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				})
			}
		}
	}

	if genResp.UsageMetadata != nil {
		resp.TokensIn = int(genResp.UsageMetadata.PromptTokenCount)
		resp.TokensOut = int(genResp.UsageMetadata.CandidatesTokenCount)
	}

	return resp, nil
}

func (p *GeminiProvider) classifyError(err error) error {
	kind := fault.TransientBackend
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		kind = classifyStatus(apiErr.Code)
	}
	return fault.New(kind, p.component(), "generate_content", "generation failed", err)
}
