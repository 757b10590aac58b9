// Package ticket opens support tickets with the human legal team. The last
// rung of the escalation ladder ends here: when the agent cannot make
// progress, a ticket is opened and the case pauses until support responds.
package ticket

import (
	"context"

	"github.com/causahq/causa/pkg/config"
)

const component = "ticket"

// Service opens tickets.
type Service interface {
	// Open files a ticket and returns its id.
	Open(ctx context.Context, summary, body string) (string, error)
}

// New selects the HTTP client when a base URL is configured, the in-memory
// fake otherwise.
func New(cfg *config.TicketingConfig) Service {
	if cfg.BaseURL == "" {
		return NewMemory()
	}
	return NewHTTP(cfg)
}
