package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/httpclient"
)

// HTTPService calls the billing API over the shared retrying client.
type HTTPService struct {
	base   string
	apiKey string
	client *httpclient.Client
}

var _ Service = (*HTTPService)(nil)

// NewHTTP builds the client from configuration.
func NewHTTP(cfg *config.BillingConfig) *HTTPService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &HTTPService{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
		),
	}
}

type quotaRequest struct {
	OwnerKind string `json:"owner_kind"`
	OwnerID   string `json:"owner_id"`
	Tier      int    `json:"tier"`
}

type quotaResponse struct {
	HasQuota bool `json:"has_quota"`
}

func (s *HTTPService) CheckQuota(ctx context.Context, owner casefile.Owner, tier int) (bool, error) {
	body, err := json.Marshal(quotaRequest{
		OwnerKind: string(owner.Kind),
		OwnerID:   owner.ID,
		Tier:      tier,
	})
	if err != nil {
		return false, fault.New(fault.PermanentBackend, component, "check_quota", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/v1/quota/check", bytes.NewReader(body))
	if err != nil {
		return false, fault.New(fault.PermanentBackend, component, "check_quota", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if resp == nil {
		return false, fault.New(fault.TransientBackend, component, "check_quota", "call billing API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := fault.PermanentBackend
		switch {
		case resp.StatusCode >= 500:
			kind = fault.TransientBackend
		case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests:
			kind = fault.QuotaExceeded
		}
		return false, fault.New(kind, component, "check_quota",
			"billing API returned "+resp.Status, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fault.New(fault.TransientBackend, component, "check_quota", "read response", err)
	}
	var out quotaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return false, fault.New(fault.PermanentBackend, component, "check_quota", "decode response", err)
	}
	return out.HasQuota, nil
}
