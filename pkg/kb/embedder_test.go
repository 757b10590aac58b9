package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var wireReq OpenAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wireReq))
		assert.Equal(t, "text-embedding-3-small", wireReq.Model)
		require.Equal(t, []string{"contract de închiriere", "reziliere"}, wireReq.Input)

		// Out of order on purpose; Index maps embeddings back to inputs.
		resp := OpenAIEmbedResponse{Data: []OpenAIEmbedding{
			{Index: 1, Embedding: []float32{0, 1}},
			{Index: 0, Embedding: []float32{1, 0}},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbedderConfig{
		Model:     "text-embedding-3-small",
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Dimension: 2,
	})
	defer embedder.Close()

	vectors, err := embedder.EmbedBatch(context.Background(),
		[]string{"contract de închiriere", "reziliere"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestOpenAIEmbedderChunksLargeBatches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var wireReq OpenAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&wireReq))
		assert.LessOrEqual(t, len(wireReq.Input), embedBatchSize)

		resp := OpenAIEmbedResponse{Data: make([]OpenAIEmbedding, len(wireReq.Input))}
		for i := range wireReq.Input {
			resp.Data[i] = OpenAIEmbedding{Index: i, Embedding: []float32{float32(i)}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbedderConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	defer embedder.Close()

	texts := make([]string, 150)
	for i := range texts {
		texts[i] = "document " + strconv.Itoa(i)
	}
	vectors, err := embedder.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 150)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEmbedderAuthFailureIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbedderConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "bad-key",
		BaseURL: server.URL,
	})
	defer embedder.Close()

	_, err := embedder.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, fault.PermanentBackend, fault.KindOf(err))
	assert.Contains(t, err.Error(), "Incorrect API key provided")
}

func TestOpenAIEmbedderRejectsShortResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := OpenAIEmbedResponse{Data: []OpenAIEmbedding{{Index: 0, Embedding: []float32{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbedderConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	defer embedder.Close()

	_, err := embedder.EmbedBatch(context.Background(), []string{"unu", "doi"})
	require.Error(t, err)
	assert.Equal(t, fault.TransientBackend, fault.KindOf(err))
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}

func TestOpenAIEmbedderTrimsBaseURL(t *testing.T) {
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		resp := OpenAIEmbedResponse{Data: []OpenAIEmbedding{{Index: 0, Embedding: []float32{1}}}}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	embedder := NewOpenAIEmbedder(config.EmbedderConfig{
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
	})
	defer embedder.Close()

	_, err := embedder.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "/embeddings", path.Load())
	assert.False(t, strings.Contains(path.Load().(string), "//"))
}

func TestNewEmbedderRejectsUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), config.EmbedderConfig{Provider: "cohere"})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}
