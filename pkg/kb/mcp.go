package kb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/httpclient"
	"github.com/causahq/causa/pkg/observability"
)

const (
	mcpProtocolVersion = "2024-11-05"
	mcpClientName      = "causa"
	mcpClientVersion   = "1.0.0"
)

// MCPKB delegates search to a tool on an external MCP server, typically one
// fronting a commercial legal database. The tool receives the query
// descriptor as arguments and must return a JSON array of records
// ({"doc_id", "title", "summary", "full_text"}) as text content.
type MCPKB struct {
	toolName string
	session  mcpSession
}

// mcpSession abstracts the two transports: a subprocess spoken to over stdio
// and a remote server spoken to over streamable HTTP.
type mcpSession interface {
	callTool(ctx context.Context, name string, args map[string]any) (string, error)
	close() error
}

// NewMCP connects to the configured MCP server and verifies the handshake.
func NewMCP(ctx context.Context, cfg config.MCPConfig) (*MCPKB, error) {
	var session mcpSession
	var err error
	if cfg.Command != "" {
		session, err = newStdioSession(ctx, cfg)
	} else {
		session, err = newHTTPSession(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	return &MCPKB{toolName: cfg.ToolName, session: session}, nil
}

func (m *MCPKB) Query(ctx context.Context, q QueryDescriptor) ([]Record, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	tracer := observability.GetTracer("causa.kb")
	ctx, span := tracer.Start(ctx, "kb.query",
		trace.WithAttributes(
			attribute.String("kb.source", string(q.Source)),
			attribute.String("kb.mode", string(q.Mode)),
			attribute.String("kb.tool", m.toolName),
		),
	)
	defer span.End()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args := map[string]any{
		"source":   string(q.Source),
		"keywords": q.Keywords,
		"mode":     string(q.Mode),
		"limit":    limit,
	}
	if len(q.DocIDs) > 0 {
		args["doc_ids"] = q.DocIDs
	}

	text, err := m.session.callTool(ctx, m.toolName, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	records, err := parseMCPRecords(text, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("kb.records", len(records)))
	span.SetStatus(codes.Ok, "")
	return records, nil
}

func (m *MCPKB) Close() error { return m.session.close() }

type mcpRecord struct {
	DocID    string `json:"doc_id"`
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	FullText string `json:"full_text"`
}

func parseMCPRecords(text string, limit int) ([]Record, error) {
	var wire []mcpRecord
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", "parse_records",
			"search tool did not return a JSON record array", err)
	}
	if len(wire) > limit {
		wire = wire[:limit]
	}
	records := make([]Record, len(wire))
	for i, rec := range wire {
		records[i] = Record{
			DocID:    rec.DocID,
			Title:    rec.Title,
			Summary:  rec.Summary,
			FullText: rec.FullText,
		}
	}
	return records, nil
}

// stdioSession speaks MCP to a subprocess through mcp-go.
type stdioSession struct {
	client *client.Client
}

func newStdioSession(ctx context.Context, cfg config.MCPConfig) (*stdioSession, error) {
	env := make([]string, 0, len(cfg.Env))
	for key, value := range cfg.Env {
		env = append(env, key+"="+value)
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", "connect",
			"starting mcp server failed", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", "connect",
			"starting mcp client failed", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: mcpClientName, Version: mcpClientVersion}
	initReq.Params.ProtocolVersion = mcpProtocolVersion
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", "connect",
			"mcp initialize failed", err)
	}
	return &stdioSession{client: mcpClient}, nil
}

func (s *stdioSession) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fault.New(fault.TransientBackend, "kb.mcp", "call_tool",
			"mcp call failed", err)
	}

	var texts []string
	for _, content := range resp.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	text := strings.Join(texts, "")
	if resp.IsError {
		return "", fault.New(fault.TransientBackend, "kb.mcp", "call_tool",
			fmt.Sprintf("search tool returned an error: %s", text), nil)
	}
	return text, nil
}

func (s *stdioSession) close() error { return s.client.Close() }

// httpSession speaks JSON-RPC over streamable HTTP, with retries and backoff
// from the shared client. Responses may arrive as plain JSON or as an SSE
// stream carrying a single JSON-RPC message.
type httpSession struct {
	url        string
	httpClient *httpclient.Client
	requestID  atomic.Int64

	mu        sync.Mutex
	sessionID string
}

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallResult is the MCP tools/call result payload.
type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func newHTTPSession(ctx context.Context, cfg config.MCPConfig) (*httpSession, error) {
	session := &httpSession{
		url:        cfg.URL,
		httpClient: httpclient.New(),
	}

	resp, err := session.call(ctx, "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"clientInfo": map[string]any{
			"name":    mcpClientName,
			"version": mcpClientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", "connect",
			fmt.Sprintf("mcp initialize failed: %s", resp.Error.Message), nil)
	}
	return session, nil
}

func (s *httpSession) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	resp, err := s.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fault.New(fault.TransientBackend, "kb.mcp", "call_tool",
			fmt.Sprintf("mcp call failed: %s", resp.Error.Message), nil)
	}

	var result toolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fault.New(fault.TransientBackend, "kb.mcp", "call_tool",
			"decoding tool result failed", err)
	}

	var texts []string
	for _, content := range result.Content {
		if content.Type == "text" {
			texts = append(texts, content.Text)
		}
	}
	text := strings.Join(texts, "")
	if result.IsError {
		return "", fault.New(fault.TransientBackend, "kb.mcp", "call_tool",
			fmt.Sprintf("search tool returned an error: %s", text), nil)
	}
	return text, nil
}

func (s *httpSession) call(ctx context.Context, method string, params any) (*jsonRPCResponse, error) {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", method,
			"encoding request failed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fault.New(fault.PermanentBackend, "kb.mcp", method,
			"building request failed", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := s.httpClient.Do(req)
	if resp == nil {
		return nil, fault.New(fault.TransientBackend, "kb.mcp", method,
			"request failed", err)
	}
	defer resp.Body.Close()

	if newSessionID := resp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.mu.Lock()
		s.sessionID = newSessionID
		s.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fault.New(classifyStatusKind(resp.StatusCode), "kb.mcp", method,
			fmt.Sprintf("mcp server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))), nil)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(resp.Body, method)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.mcp", method,
			"reading response failed", err)
	}
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.mcp", method,
			"decoding response failed", err)
	}
	return &rpcResp, nil
}

func (s *httpSession) close() error { return nil }

// readSSEResponse extracts the first JSON-RPC message from an SSE stream.
// The HTTP client timeout bounds the read.
func readSSEResponse(body io.Reader, method string) (*jsonRPCResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	flush := func() (*jsonRPCResponse, bool) {
		if data.Len() == 0 {
			return nil, false
		}
		var rpcResp jsonRPCResponse
		if err := json.Unmarshal([]byte(data.String()), &rpcResp); err != nil {
			data.Reset()
			return nil, false
		}
		return &rpcResp, true
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if rpcResp, ok := flush(); ok {
				return rpcResp, nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fault.New(fault.TransientBackend, "kb.mcp", method,
			"reading event stream failed", err)
	}
	if rpcResp, ok := flush(); ok {
		return rpcResp, nil
	}
	return nil, fault.New(fault.TransientBackend, "kb.mcp", method,
		"event stream ended without a response", nil)
}
