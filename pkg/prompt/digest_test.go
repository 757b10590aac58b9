package prompt

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// tightBuilder builds a DigestBuilder with a deterministic byte-derived
// token count, so budget boundary tests do not depend on a tokenizer
// dictionary being available.
func tightBuilder(budgetBytes, pruneThreshold int) *DigestBuilder {
	return &DigestBuilder{
		budgetBytes:    budgetBytes,
		budgetTokens:   budgetBytes / 4,
		pruneThreshold: pruneThreshold,
		counter:        &TokenCounter{},
	}
}

func digestCase() *casefile.Case {
	return &casefile.Case{
		ID:           "case-123",
		Status:       casefile.StatusActive,
		Tier:         2,
		UserLanguage: "ro",
	}
}

func TestDigestIncludesCoreSections(t *testing.T) {
	b := NewDigestBuilder(config.OrchestratorConfig{
		AssistantContextBudgetBytes: 65536,
		ConsiderationPruneThreshold: 20,
	})
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	c := digestCase()
	c.AttachedParties = []casefile.AttachedParty{
		{PartyID: "party-9", Role: "reclamant"},
		{PartyID: "party-3", Role: "pârât"},
	}
	c.AttachedDocuments = []casefile.AttachedDocument{
		{DocumentID: "doc-1", Name: "Contract.pdf"},
		{DocumentID: "doc-2", Name: "Somație.pdf"},
	}

	details := &casefile.Details{}
	details.Summary.Current = "Client amendat pentru oprire neregulamentară, contestă procesul-verbal."
	details.Objectives = []casefile.Objective{
		{Objective: "Redactarea contestației", Status: casefile.ObjectivePending},
	}
	details.AgentInteractions.ActiveInfoRequestToUser = "Care este data comunicării procesului-verbal?"
	details.DocumentsAnalysis = map[string]casefile.DocumentAnalysis{
		"doc-1": {
			Name:      "Contract.pdf",
			Summary:   "Contract de închiriere pe 12 luni.",
			KeyPoints: []string{"Chiria este de 2500 lei."},
		},
	}
	details.Facts = []casefile.Fact{
		{Timestamp: now, Source: "user", Fact: "Amenda a fost primită pe 1 martie.", Confidence: "ridicată"},
	}
	details.LegalResearch.Legislation = []casefile.ResearchEntry{
		{DocID: "oug-195-2002", Title: "OUG 195/2002", Relevance: "Regimul contravențiilor rutiere.", Status: casefile.ResearchApplied, FetchedAt: now},
	}
	details.Drafts = []casefile.Draft{
		{Name: "contestatie", Revision: 1, Status: casefile.DraftGenerated, Feedback: []string{"Lipsește temeiul legal."}},
	}
	details.AgentInteractions.Log = []casefile.LogEntry{
		{Timestamp: now, Kind: "tool_call", Tool: "research_query", Summary: "Căutare legislație rutieră."},
	}

	digest, err := b.Build(c, details)
	require.NoError(t, err)

	assert.Contains(t, digest, "# Dosar case-123")
	assert.Contains(t, digest, "Nivel de complexitate: 2")
	assert.Contains(t, digest, "## Rezumatul cazului\nClient amendat")
	assert.Contains(t, digest, "- [pending] Redactarea contestației")
	assert.Contains(t, digest, "## Întrebare activă către client (fără răspuns încă)\nCare este data comunicării")
	assert.Contains(t, digest, "- party1: reclamant")
	assert.Contains(t, digest, "- party2: pârât")
	assert.Contains(t, digest, "- doc-1 „Contract.pdf”: Contract de închiriere pe 12 luni.")
	assert.Contains(t, digest, "  - Chiria este de 2500 lei.")
	assert.Contains(t, digest, "- doc-2 „Somație.pdf”: neanalizat încă")
	assert.Contains(t, digest, "- legislație [applied] oug-195-2002 „OUG 195/2002”: Regimul contravențiilor rutiere.")
	assert.Contains(t, digest, "- contestatie v1 (generated)")
	assert.Contains(t, digest, "  observație: Lipsește temeiul legal.")
	assert.Contains(t, digest, "- 2026-03-10 [user] Amenda a fost primită pe 1 martie. (încredere: ridicată)")
	assert.Contains(t, digest, "- 2026-03-10 12:00 tool_call/research_query: Căutare legislație rutieră.")
}

func TestDigestHeaderShowsPendingTier(t *testing.T) {
	b := tightBuilder(4096, 20)
	c := &casefile.Case{ID: "case-7", Status: casefile.StatusTierPending}

	digest, err := b.Build(c, &casefile.Details{})
	require.NoError(t, err)

	assert.Contains(t, digest, "Stare: tier_pending")
	assert.Contains(t, digest, "Nivel de complexitate: în curs de stabilire")
	assert.Contains(t, digest, "Limba clientului: ro")
	assert.Contains(t, digest, "(fără rezumat încă)")
	assert.Contains(t, digest, "(fără obiective definite încă)")
}

func TestDigestMinimalOverflowFails(t *testing.T) {
	b := tightBuilder(128, 20)
	details := &casefile.Details{}
	details.Summary.Current = strings.Repeat("Un rezumat mult prea lung. ", 20)

	_, err := b.Build(digestCase(), details)
	require.Error(t, err)
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.Contains(t, err.Error(), "minimal digest")
}

func TestDigestTrimsOldFactsFirst(t *testing.T) {
	b := tightBuilder(500, 20)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	details := &casefile.Details{}
	details.Summary.Current = "Rezumat scurt."
	for i := 0; i < 30; i++ {
		details.Facts = append(details.Facts, casefile.Fact{
			Timestamp: now.Add(time.Duration(i) * time.Hour),
			Source:    "user",
			Fact:      fmt.Sprintf("fapt numărul %02d", i),
		})
	}

	digest, err := b.Build(digestCase(), details)
	require.NoError(t, err)

	assert.Contains(t, digest, "fapt numărul 29")
	assert.NotContains(t, digest, "fapt numărul 00")
	assert.Contains(t, digest, "fapte mai vechi omise)")
	require.LessOrEqual(t, len(digest), 500)
}

func TestDigestDropsConsideredResearchBeforeApplied(t *testing.T) {
	b := tightBuilder(560, 20)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	details := &casefile.Details{}
	details.Summary.Current = "Rezumat scurt."
	for i := 0; i < 6; i++ {
		details.LegalResearch.Legislation = append(details.LegalResearch.Legislation, casefile.ResearchEntry{
			DocID:     fmt.Sprintf("lege-considerata-%02d", i),
			Relevance: "Posibil relevantă pentru contestație.",
			Status:    casefile.ResearchConsidered,
			FetchedAt: now.Add(time.Duration(i) * time.Hour),
		})
	}
	details.LegalResearch.Jurisprudence = []casefile.ResearchEntry{
		{DocID: "iccj-42-2020", Relevance: "Decizie aplicată în motivare.", Status: casefile.ResearchApplied, FetchedAt: now},
	}

	digest, err := b.Build(digestCase(), details)
	require.NoError(t, err)

	assert.Contains(t, digest, "iccj-42-2020")
	assert.NotContains(t, digest, "lege-considerata-00")
	assert.Contains(t, digest, "mențiuni de cercetare omise)")
	require.LessOrEqual(t, len(digest), 560)
}

func TestDigestExcludesIrrelevantResearch(t *testing.T) {
	b := tightBuilder(8192, 20)

	details := &casefile.Details{}
	details.LegalResearch.Legislation = []casefile.ResearchEntry{
		{DocID: "lege-irelevanta", Status: casefile.ResearchIrrelevant},
		{DocID: "lege-aplicata", Status: casefile.ResearchApplied},
	}

	digest, err := b.Build(digestCase(), details)
	require.NoError(t, err)

	assert.Contains(t, digest, "lege-aplicata")
	assert.NotContains(t, digest, "lege-irelevanta")
}

func TestDigestSummarizesConsideredBeyondPruneThreshold(t *testing.T) {
	b := tightBuilder(8192, 2)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	details := &casefile.Details{}
	for i := 0; i < 5; i++ {
		details.LegalResearch.Legislation = append(details.LegalResearch.Legislation, casefile.ResearchEntry{
			DocID:     fmt.Sprintf("lege-%02d", i),
			Status:    casefile.ResearchConsidered,
			FetchedAt: now.Add(time.Duration(i) * time.Hour),
		})
	}

	digest, err := b.Build(digestCase(), details)
	require.NoError(t, err)

	assert.Contains(t, digest, "(3 mențiuni considerate mai vechi, netriate încă)")
	assert.Contains(t, digest, "lege-03")
	assert.Contains(t, digest, "lege-04")
	assert.NotContains(t, digest, "lege-02")
}

func TestDigestPartyNumberingFollowsAttachmentOrder(t *testing.T) {
	b := tightBuilder(8192, 20)

	c := digestCase()
	c.AttachedParties = []casefile.AttachedParty{
		{PartyID: "party-zz", Role: "creditor"},
		{PartyID: "party-aa", Role: "debitor"},
	}

	digest, err := b.Build(c, &casefile.Details{})
	require.NoError(t, err)

	first := strings.Index(digest, "- party1: creditor")
	second := strings.Index(digest, "- party2: debitor")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
}

func TestDigestDropsJournalBeforeFacts(t *testing.T) {
	b := tightBuilder(460, 20)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	details := &casefile.Details{}
	details.Summary.Current = "Rezumat scurt."
	details.Facts = []casefile.Fact{
		{Timestamp: now, Source: "user", Fact: "faptul esențial al cazului"},
	}
	for i := 0; i < 40; i++ {
		details.AgentInteractions.Log = append(details.AgentInteractions.Log, casefile.LogEntry{
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			Kind:      "node",
			Node:      "plan",
			Summary:   fmt.Sprintf("pasul de planificare %02d", i),
		})
	}

	digest, err := b.Build(digestCase(), details)
	require.NoError(t, err)

	assert.Contains(t, digest, "faptul esențial al cazului")
	assert.NotContains(t, digest, "pasul de planificare 00")
	require.LessOrEqual(t, len(digest), 460)
}
