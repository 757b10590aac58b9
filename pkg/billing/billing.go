// Package billing asks the billing collaborator whether an owner has quota
// for a tier. Quota consumption and payment settlement live entirely on the
// billing side; this client only reads.
package billing

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
)

const component = "billing"

// Service answers quota questions.
type Service interface {
	// CheckQuota reports whether the owner can open a case at the tier
	// without paying. The call is a pure read.
	CheckQuota(ctx context.Context, owner casefile.Owner, tier int) (bool, error)
}

// New selects the HTTP client when a base URL is configured, the in-memory
// fake otherwise.
func New(cfg *config.BillingConfig) Service {
	if cfg.BaseURL == "" {
		return NewMemory()
	}
	return NewHTTP(cfg)
}
