package partystore

import (
	"context"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/redact"
)

// GuardFor builds the redaction guard covering the stored personal values of
// every party attached to the case. Parties whose record has been deleted
// are skipped so a stale attachment cannot block the whole case; any other
// backend failure is surfaced, an incomplete guard must not screen prompts.
func (s *Store) GuardFor(ctx context.Context, attached []casefile.AttachedParty) (*redact.Guard, error) {
	g := redact.NewGuard()
	for _, a := range attached {
		p, err := s.b.get(ctx, a.PartyID)
		if err != nil {
			if fault.KindOf(err) == fault.NotFound {
				continue
			}
			return nil, err
		}
		g.Add(p.SensitiveValues()...)
	}
	return g, nil
}
