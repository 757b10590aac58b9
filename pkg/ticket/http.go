package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/httpclient"
)

// HTTPService calls the ticketing API over the shared retrying client.
type HTTPService struct {
	base   string
	apiKey string
	client *httpclient.Client
}

var _ Service = (*HTTPService)(nil)

// NewHTTP builds the client from configuration.
func NewHTTP(cfg *config.TicketingConfig) *HTTPService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &HTTPService{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		),
	}
}

type openRequest struct {
	Summary string `json:"summary"`
	Body    string `json:"body"`
}

type openResponse struct {
	TicketID string `json:"ticket_id"`
}

func (s *HTTPService) Open(ctx context.Context, summary, body string) (string, error) {
	payload, err := json.Marshal(openRequest{Summary: summary, Body: body})
	if err != nil {
		return "", fault.New(fault.PermanentBackend, component, "open", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/v1/tickets", bytes.NewReader(payload))
	if err != nil {
		return "", fault.New(fault.PermanentBackend, component, "open", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if resp == nil {
		return "", fault.New(fault.TransientBackend, component, "open", "call ticketing API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		kind := fault.PermanentBackend
		if resp.StatusCode >= 500 {
			kind = fault.TransientBackend
		}
		return "", fault.New(kind, component, "open",
			"ticketing API returned "+resp.Status, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fault.New(fault.TransientBackend, component, "open", "read response", err)
	}
	var out openResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fault.New(fault.PermanentBackend, component, "open", "decode response", err)
	}
	if out.TicketID == "" {
		return "", fault.New(fault.PermanentBackend, component, "open", "ticketing API returned no ticket id", nil)
	}
	return out.TicketID, nil
}
