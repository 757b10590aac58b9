package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

func anthropicTestConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		Provider:       config.LLMProviderAnthropic,
		Model:          "claude-sonnet-4-20250514",
		APIKey:         "sk-ant-test",
		BaseURL:        baseURL,
		Temperature:    floatPtr(0.2),
		MaxTokens:      1024,
		TimeoutSeconds: 5,
		RetryBaseMs:    1,
		RetryCapMs:     2,
	}
}

func TestAnthropicGenerateBuildsMessagesRequest(t *testing.T) {
	var got AnthropicRequest
	var apiKey, version string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		apiKey = r.Header.Get("x-api-key")
		version = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(AnthropicResponse{
			Content:    []AnthropicContent{{Type: "text", Text: "Am nevoie de detaliile contractului."}},
			StopReason: "end_turn",
			Usage:      AnthropicUsage{InputTokens: 55, OutputTokens: 11},
		})
	}))
	defer srv.Close()

	provider := NewAnthropicProvider(RoleReasoner, anthropicTestConfig(srv.URL))

	resp, err := provider.Generate(context.Background(), Request{
		System: "Ești un consultant juridic senior.",
		Messages: []Message{
			{Role: MessageRoleUser, Content: "Este valabilă o clauză de denunțare unilaterală fără preaviz?"},
		},
		SessionID: "sess-case-0001-reasoner",
	})
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-test", apiKey)
	assert.Equal(t, "2023-06-01", version)
	assert.Equal(t, "claude-sonnet-4-20250514", got.Model)
	assert.Equal(t, "Ești un consultant juridic senior.", got.System)
	assert.Equal(t, 1024, got.MaxTokens)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "sess-case-0001-reasoner", got.Metadata.UserID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)

	assert.Equal(t, "Am nevoie de detaliile contractului.", resp.Text)
	assert.Equal(t, 55, resp.TokensIn)
	assert.Equal(t, 11, resp.TokensOut)
}

func TestAnthropicMessagesMergeToolResults(t *testing.T) {
	history := []Message{
		{Role: MessageRoleUser, Content: "Verifică stadiul dosarului."},
		{
			Role:    MessageRoleAssistant,
			Content: "Verific contextul și cota.",
			ToolCalls: []ToolCall{
				{ID: "call-1", Name: "get_case_context", Arguments: map[string]any{"paths": []any{"facts"}}},
				{ID: "call-2", Name: "check_quota", Arguments: map[string]any{"tier": float64(1)}},
			},
		},
		{Role: MessageRoleTool, Content: `{"facts":{}}`, ToolCallID: "call-1", Name: "get_case_context"},
		{Role: MessageRoleTool, Content: `{"allowed":true}`, ToolCallID: "call-2", Name: "check_quota"},
	}

	wire := buildAnthropicMessages(history)

	// Roles must alternate: both tool results fold into one user turn.
	require.Len(t, wire, 3)
	assert.Equal(t, "user", wire[0].Role)
	assert.Equal(t, "assistant", wire[1].Role)
	require.Len(t, wire[1].Content, 3)
	assert.Equal(t, "text", wire[1].Content[0].Type)
	assert.Equal(t, "tool_use", wire[1].Content[1].Type)
	assert.Equal(t, "call-1", wire[1].Content[1].ID)
	assert.Equal(t, "tool_use", wire[1].Content[2].Type)

	assert.Equal(t, "user", wire[2].Role)
	require.Len(t, wire[2].Content, 2)
	assert.Equal(t, "tool_result", wire[2].Content[0].Type)
	assert.Equal(t, "call-1", wire[2].Content[0].ToolUseID)
	assert.Equal(t, "tool_result", wire[2].Content[1].Type)
	assert.Equal(t, "call-2", wire[2].Content[1].ToolUseID)
}

func TestAnthropicGenerateParsesToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		input := map[string]any{"source": "legislation", "keywords": "reziliere contract închiriere"}
		json.NewEncoder(w).Encode(AnthropicResponse{
			Content: []AnthropicContent{
				{Type: "text", Text: "Caut temeiul legal."},
				{Type: "tool_use", ID: "toolu-01", Name: "research_query", Input: &input},
			},
			StopReason: "tool_use",
			Usage:      AnthropicUsage{InputTokens: 80, OutputTokens: 25},
		})
	}))
	defer srv.Close()

	provider := NewAnthropicProvider(RoleAssistant, anthropicTestConfig(srv.URL))

	resp, err := provider.Generate(context.Background(), Request{
		Messages: []Message{{Role: MessageRoleUser, Content: "Pe ce temei pot rezilia?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Caut temeiul legal.", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu-01", resp.ToolCalls[0].ID)
	assert.Equal(t, "research_query", resp.ToolCalls[0].Name)
	assert.Equal(t, "legislation", resp.ToolCalls[0].Arguments["source"])
}

func TestAnthropicOverloadedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(529)
		json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "overloaded_error", "message": "Overloaded"},
		})
	}))
	defer srv.Close()

	provider := NewAnthropicProvider(RoleAssistant, anthropicTestConfig(srv.URL))

	_, err := provider.Generate(context.Background(), Request{
		Messages: []Message{{Role: MessageRoleUser, Content: "ping"}},
	})
	require.Error(t, err)
	assert.Equal(t, fault.TransientBackend, fault.KindOf(err))
	assert.Contains(t, err.Error(), "Overloaded")
}
