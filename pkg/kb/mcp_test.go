package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

func writeRPCResult(t *testing.T, w http.ResponseWriter, id int64, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  raw,
	}))
}

func textToolResult(text string, isError bool) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": text}},
		"isError": isError,
	}
}

func TestMCPQueryCallsSearchTool(t *testing.T) {
	recordsJSON := `[{"doc_id":"oug-195-2002","title":"OUG 195/2002","summary":"Circulația pe drumurile publice."}]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rpcReq jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rpcReq))

		switch rpcReq.Method {
		case "initialize":
			w.Header().Set("mcp-session-id", "sess-42")
			writeRPCResult(t, w, rpcReq.ID, map[string]any{"protocolVersion": mcpProtocolVersion})
		case "tools/call":
			assert.Equal(t, "sess-42", r.Header.Get("mcp-session-id"))

			params, ok := rpcReq.Params.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "legal_search", params["name"])

			args, ok := params["arguments"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "legislation", args["source"])
			assert.Equal(t, "summaries", args["mode"])
			assert.Equal(t, []any{"amendă", "rutieră"}, args["keywords"])
			assert.Equal(t, float64(5), args["limit"])
			assert.NotContains(t, args, "doc_ids")

			writeRPCResult(t, w, rpcReq.ID, textToolResult(recordsJSON, false))
		default:
			t.Errorf("unexpected method %q", rpcReq.Method)
		}
	}))
	defer server.Close()

	mcpKB, err := NewMCP(context.Background(), config.MCPConfig{
		URL:      server.URL,
		ToolName: "legal_search",
	})
	require.NoError(t, err)
	defer mcpKB.Close()

	records, err := mcpKB.Query(context.Background(), QueryDescriptor{
		Source:   SourceLegislation,
		Keywords: []string{"amendă", "rutieră"},
		Mode:     ModeSummaries,
		Limit:    5,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "oug-195-2002", records[0].DocID)
	assert.Equal(t, "OUG 195/2002", records[0].Title)
	assert.Equal(t, "Circulația pe drumurile publice.", records[0].Summary)
}

func TestMCPQueryToolErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rpcReq jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rpcReq))
		if rpcReq.Method == "initialize" {
			writeRPCResult(t, w, rpcReq.ID, map[string]any{"protocolVersion": mcpProtocolVersion})
			return
		}
		writeRPCResult(t, w, rpcReq.ID, textToolResult("index unavailable", true))
	}))
	defer server.Close()

	mcpKB, err := NewMCP(context.Background(), config.MCPConfig{URL: server.URL, ToolName: "search"})
	require.NoError(t, err)
	defer mcpKB.Close()

	_, err = mcpKB.Query(context.Background(), QueryDescriptor{
		Source:   SourceJurisprudence,
		Keywords: []string{"contestație"},
		Mode:     ModeSummaries,
	})
	require.Error(t, err)
	assert.Equal(t, fault.TransientBackend, fault.KindOf(err))
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestMCPQueryParsesSSEResponse(t *testing.T) {
	recordsJSON := `[{"doc_id":"iccj-1234-2019","title":"Decizia ICCJ nr. 1234/2019","full_text":"Motivarea completă."}]`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rpcReq jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rpcReq))
		if rpcReq.Method == "initialize" {
			writeRPCResult(t, w, rpcReq.ID, map[string]any{"protocolVersion": mcpProtocolVersion})
			return
		}

		raw, err := json.Marshal(textToolResult(recordsJSON, false))
		require.NoError(t, err)
		rpcJSON, err := json.Marshal(jsonRPCResponse{JSONRPC: "2.0", ID: rpcReq.ID, Result: raw})
		require.NoError(t, err)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", rpcJSON)
	}))
	defer server.Close()

	mcpKB, err := NewMCP(context.Background(), config.MCPConfig{URL: server.URL, ToolName: "search"})
	require.NoError(t, err)
	defer mcpKB.Close()

	records, err := mcpKB.Query(context.Background(), QueryDescriptor{
		Source: SourceJurisprudence,
		Mode:   ModeFullText,
		DocIDs: []string{"iccj-1234-2019"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Motivarea completă.", records[0].FullText)
}

func TestMCPQueryValidatesBeforeCalling(t *testing.T) {
	var toolCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rpcReq jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rpcReq))
		if rpcReq.Method == "initialize" {
			writeRPCResult(t, w, rpcReq.ID, map[string]any{"protocolVersion": mcpProtocolVersion})
			return
		}
		toolCalls.Add(1)
		writeRPCResult(t, w, rpcReq.ID, textToolResult("[]", false))
	}))
	defer server.Close()

	mcpKB, err := NewMCP(context.Background(), config.MCPConfig{URL: server.URL, ToolName: "search"})
	require.NoError(t, err)
	defer mcpKB.Close()

	_, err = mcpKB.Query(context.Background(), QueryDescriptor{
		Source:   "doctrine",
		Keywords: []string{"uzucapiune"},
		Mode:     ModeSummaries,
	})
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Equal(t, int32(0), toolCalls.Load())
}

func TestMCPInitializeErrorFailsConstruction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rpcReq jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rpcReq))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(jsonRPCResponse{
			JSONRPC: "2.0",
			ID:      rpcReq.ID,
			Error:   &jsonRPCError{Code: -32600, Message: "unsupported protocol version"},
		}))
	}))
	defer server.Close()

	_, err := NewMCP(context.Background(), config.MCPConfig{URL: server.URL, ToolName: "search"})
	require.Error(t, err)
	assert.Equal(t, fault.PermanentBackend, fault.KindOf(err))
	assert.Contains(t, err.Error(), "unsupported protocol version")
}

func TestParseMCPRecordsClampsLimit(t *testing.T) {
	text := `[{"doc_id":"a"},{"doc_id":"b"},{"doc_id":"c"}]`
	records, err := parseMCPRecords(text, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].DocID)
	assert.Equal(t, "b", records[1].DocID)
}

func TestParseMCPRecordsRejectsNonArray(t *testing.T) {
	_, err := parseMCPRecords(`{"error": "not found"}`, 10)
	require.Error(t, err)
	assert.Equal(t, fault.PermanentBackend, fault.KindOf(err))
}

func TestReadSSEResponseJoinsDataLines(t *testing.T) {
	stream := "event: message\ndata: {\"jsonrpc\":\ndata: \"2.0\",\"id\":7}\n\n"
	rpcResp, err := readSSEResponse(strings.NewReader(stream), "tools/call")
	require.NoError(t, err)
	assert.Equal(t, int64(7), rpcResp.ID)
}

func TestReadSSEResponseEmptyStreamFails(t *testing.T) {
	_, err := readSSEResponse(strings.NewReader(""), "tools/call")
	require.Error(t, err)
	assert.Equal(t, fault.TransientBackend, fault.KindOf(err))
}
