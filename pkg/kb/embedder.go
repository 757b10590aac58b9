package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/httpclient"
)

// classifyStatusKind maps a backend HTTP status to a fault kind once the
// shared client has exhausted its retries. Rate limits and server errors
// stay retryable; everything else is permanent.
func classifyStatusKind(status int) fault.Kind {
	if status == http.StatusTooManyRequests || status >= 500 {
		return fault.TransientBackend
	}
	return fault.PermanentBackend
}

func classifyGenaiError(err error) fault.Kind {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatusKind(apiErr.Code)
	}
	return fault.TransientBackend
}

// Embedder turns corpus text and query keywords into vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Close() error
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(ctx context.Context, cfg config.EmbedderConfig) (Embedder, error) {
	switch cfg.Provider {
	case config.EmbedderProviderOpenAI, "":
		return NewOpenAIEmbedder(cfg), nil
	case config.EmbedderProviderGemini:
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fault.New(fault.Validation, "kb", "new_embedder",
			fmt.Sprintf("unknown embedder provider %q", cfg.Provider), nil)
	}
}

// embedBatchSize is the maximum number of inputs sent in one embeddings call.
const embedBatchSize = 100

const defaultOpenAIEmbedBaseURL = "https://api.openai.com/v1"

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	config     config.EmbedderConfig
	httpClient *httpclient.Client
}

// OpenAIEmbedRequest is the embeddings API request payload.
type OpenAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OpenAIEmbedResponse is the embeddings API response payload.
type OpenAIEmbedResponse struct {
	Data  []OpenAIEmbedding `json:"data"`
	Model string            `json:"model"`
	Error *OpenAIEmbedError `json:"error,omitempty"`
}

// OpenAIEmbedding is one embedding in the response, with the index of the
// input it belongs to.
type OpenAIEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// OpenAIEmbedError is the embeddings API error envelope.
type OpenAIEmbedError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIEmbedder(cfg config.EmbedderConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		config:     cfg,
		httpClient: httpclient.New(httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders)),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	const component = "kb.embedder"

	body, err := json.Marshal(OpenAIEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "embeddings",
			"encoding request failed", err)
	}

	baseURL := e.config.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIEmbedBaseURL
	}
	url := strings.TrimSuffix(baseURL, "/") + "/embeddings"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, component, "embeddings",
			"building request failed", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if resp == nil {
		return nil, fault.New(fault.TransientBackend, component, "embeddings",
			"request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, component, "embeddings",
			"reading response failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := strings.TrimSpace(string(respBody))
		var wireResp OpenAIEmbedResponse
		if jsonErr := json.Unmarshal(respBody, &wireResp); jsonErr == nil && wireResp.Error != nil {
			detail = wireResp.Error.Message
		}
		return nil, fault.New(classifyStatusKind(resp.StatusCode), component, "embeddings",
			fmt.Sprintf("embeddings request returned %d: %s", resp.StatusCode, detail), nil)
	}

	var wireResp OpenAIEmbedResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fault.New(fault.TransientBackend, component, "embeddings",
			"decoding response failed", err)
	}
	if len(wireResp.Data) != len(texts) {
		return nil, fault.New(fault.TransientBackend, component, "embeddings",
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(wireResp.Data)), nil)
	}

	// The API may return embeddings out of order; Index maps each one back
	// to its input.
	vectors := make([][]float32, len(texts))
	for _, item := range wireResp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fault.New(fault.TransientBackend, component, "embeddings",
				fmt.Sprintf("embedding index %d out of range", item.Index), nil)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) Dimension() int { return e.config.Dimension }

func (e *OpenAIEmbedder) Close() error { return nil }

// GeminiEmbedder embeds through the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	config config.EmbedderConfig
}

func NewGeminiEmbedder(ctx context.Context, cfg config.EmbedderConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.embedder", "new_client",
			"creating gemini client failed", err)
	}
	return &GeminiEmbedder{client: client, config: cfg}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *GeminiEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.config.Model, contents,
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"})
	if err != nil {
		return nil, fault.New(classifyGenaiError(err), "kb.embedder", "embed_content",
			"embedding failed", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fault.New(fault.TransientBackend, "kb.embedder", "embed_content",
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Embeddings)), nil)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (e *GeminiEmbedder) Dimension() int { return e.config.Dimension }

// Close releases nothing today: the genai client holds no long-lived
// connections that need explicit shutdown.
func (e *GeminiEmbedder) Close() error { return nil }
