package prompt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/config"
	"github.com/causahq/causa/pkg/fault"
)

// DigestBuilder renders the case into the bounded Romanian digest every
// model-calling node puts in front of the assistant. The byte budget is
// primary; a token cap derived from it (four bytes per token) is the
// secondary guard against dense text.
//
// The summary and the objectives always make it in; when they alone exceed
// the budget, Build fails instead of truncating them. Everything else is
// optional and is dropped or trimmed in a fixed priority order, with every
// trimmed list noting how many entries were left out.
type DigestBuilder struct {
	budgetBytes    int
	budgetTokens   int
	pruneThreshold int
	counter        *TokenCounter
}

// NewDigestBuilder builds a DigestBuilder from the orchestrator config.
func NewDigestBuilder(cfg config.OrchestratorConfig) *DigestBuilder {
	return &DigestBuilder{
		budgetBytes:    cfg.AssistantContextBudgetBytes,
		budgetTokens:   cfg.AssistantContextBudgetBytes / 4,
		pruneThreshold: cfg.ConsiderationPruneThreshold,
		counter:        NewTokenCounter(),
	}
}

// Display order of the digest sections. Budget priority is the call order in
// Build, which differs: the active question and the facts outrank the
// journal regardless of where they appear on screen.
const (
	slotHeader = iota
	slotSummary
	slotObjectives
	slotActiveRequest
	slotParties
	slotDocuments
	slotResearch
	slotDrafts
	slotFacts
	slotJournal
	slotCount
)

// Build renders the digest for one case.
func (b *DigestBuilder) Build(c *casefile.Case, details *casefile.Details) (string, error) {
	slots := make([]string, slotCount)
	assembled := func() string {
		parts := make([]string, 0, slotCount)
		for _, s := range slots {
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n\n")
	}
	fits := func() bool {
		text := assembled()
		return len(text) <= b.budgetBytes && b.counter.Count(text) <= b.budgetTokens
	}

	slots[slotHeader] = renderHeader(c)
	slots[slotSummary] = renderSummary(details)
	slots[slotObjectives] = renderObjectives(details)
	if !fits() {
		return "", fault.New(fault.Validation, "prompt.digest", "build",
			fmt.Sprintf("the minimal digest (summary and objectives) needs %d bytes, above the configured budget of %d",
				len(assembled()), b.budgetBytes), nil)
	}

	b.place(slots, slotActiveRequest, renderActiveRequest(details), fits)
	b.placeLines(slots, slotFacts, "Fapte", factLines(details.Facts), "fapte mai vechi", fits)
	b.placeLines(slots, slotResearch, "Cercetare juridică", b.researchLines(&details.LegalResearch), "mențiuni de cercetare", fits)
	b.place(slots, slotParties, renderParties(c), fits)
	b.place(slots, slotDocuments, renderDocuments(c, details), fits)
	b.place(slots, slotDrafts, renderDrafts(details), fits)
	b.placeLines(slots, slotJournal, "Jurnal recent", journalLines(details.AgentInteractions.Log), "înregistrări mai vechi", fits)

	return assembled(), nil
}

// place sets a whole section if the digest still fits with it, and drops it
// otherwise.
func (b *DigestBuilder) place(slots []string, slot int, body string, fits func() bool) {
	if body == "" {
		return
	}
	slots[slot] = body
	if !fits() {
		slots[slot] = ""
	}
}

// placeLines keeps as many trailing lines as fit and notes how many were
// left out. Lines arrive least important first, so trimming drops from the
// front. The keep count is found by binary search; fits() tokenizes the
// whole digest, so a linear scan over a long journal would be quadratic.
func (b *DigestBuilder) placeLines(slots []string, slot int, title string, lines []string, omittedNoun string, fits func() bool) {
	if len(lines) == 0 {
		return
	}
	render := func(keep int) string {
		var sb strings.Builder
		sb.WriteString("## " + title)
		if omitted := len(lines) - keep; omitted > 0 {
			fmt.Fprintf(&sb, "\n(%d %s omise)", omitted, omittedNoun)
		}
		for _, line := range lines[len(lines)-keep:] {
			sb.WriteString("\n" + line)
		}
		return sb.String()
	}

	lo, hi := 0, len(lines)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		slots[slot] = render(mid)
		if fits() {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	slots[slot] = render(lo)
	if !fits() {
		slots[slot] = ""
	}
}

func renderHeader(c *casefile.Case) string {
	tier := "în curs de stabilire"
	if c.Tier > 0 {
		tier = strconv.Itoa(c.Tier)
	}
	lang := c.UserLanguage
	if lang == "" {
		lang = "ro"
	}
	return fmt.Sprintf("# Dosar %s\nStare: %s | Nivel de complexitate: %s | Limba clientului: %s",
		c.ID, c.Status, tier, lang)
}

func renderSummary(details *casefile.Details) string {
	current := strings.TrimSpace(details.Summary.Current)
	if current == "" {
		current = "(fără rezumat încă)"
	}
	return "## Rezumatul cazului\n" + current
}

func renderObjectives(details *casefile.Details) string {
	if len(details.Objectives) == 0 {
		return "## Obiective\n(fără obiective definite încă)"
	}
	var sb strings.Builder
	sb.WriteString("## Obiective")
	for _, o := range details.Objectives {
		fmt.Fprintf(&sb, "\n- [%s] %s", o.Status, o.Objective)
	}
	return sb.String()
}

func renderActiveRequest(details *casefile.Details) string {
	request := strings.TrimSpace(details.AgentInteractions.ActiveInfoRequestToUser)
	if request == "" {
		return ""
	}
	return "## Întrebare activă către client (fără răspuns încă)\n" + request
}

// renderParties numbers the attached parties; the numbering is what draft
// placeholders like {{party2.address}} refer to.
func renderParties(c *casefile.Case) string {
	if len(c.AttachedParties) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Părți")
	for i, p := range c.AttachedParties {
		fmt.Fprintf(&sb, "\n- party%d: %s", i+1, p.Role)
	}
	return sb.String()
}

func renderDocuments(c *casefile.Case, details *casefile.Details) string {
	if len(c.AttachedDocuments) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Documente atașate")
	for _, doc := range c.AttachedDocuments {
		analysis, analyzed := details.DocumentsAnalysis[doc.DocumentID]
		if !analyzed {
			fmt.Fprintf(&sb, "\n- %s „%s”: neanalizat încă", doc.DocumentID, doc.Name)
			continue
		}
		fmt.Fprintf(&sb, "\n- %s „%s”: %s", doc.DocumentID, doc.Name, strings.TrimSpace(analysis.Summary))
		for _, point := range analysis.KeyPoints {
			fmt.Fprintf(&sb, "\n  - %s", point)
		}
	}
	return sb.String()
}

func renderDrafts(details *casefile.Details) string {
	if len(details.Drafts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Documente redactate")
	for _, d := range details.Drafts {
		fmt.Fprintf(&sb, "\n- %s v%d (%s)", d.Name, d.Revision, d.Status)
		for _, f := range d.Feedback {
			fmt.Fprintf(&sb, "\n  observație: %s", f)
		}
	}
	return sb.String()
}

func factLines(facts []casefile.Fact) []string {
	lines := make([]string, 0, len(facts))
	for _, f := range facts {
		line := fmt.Sprintf("- %s [%s] %s", f.Timestamp.Format("2006-01-02"), f.Source, f.Fact)
		if f.Confidence != "" {
			line += fmt.Sprintf(" (încredere: %s)", f.Confidence)
		}
		lines = append(lines, line)
	}
	return lines
}

// researchLines flattens both research lists into drop-order: prunable
// considered entries first, applied entries last so they survive trimming.
// Irrelevant entries never reach the digest. Beyond the prune threshold the
// oldest considered entries are summarized into a count; the store keeps
// them all.
func (b *DigestBuilder) researchLines(lr *casefile.LegalResearch) []string {
	type tagged struct {
		kind  string
		entry casefile.ResearchEntry
	}
	var considered, applied []tagged
	collect := func(kind string, entries []casefile.ResearchEntry) {
		for _, e := range entries {
			switch e.Status {
			case casefile.ResearchApplied:
				applied = append(applied, tagged{kind, e})
			case casefile.ResearchConsidered:
				considered = append(considered, tagged{kind, e})
			}
		}
	}
	collect("legislație", lr.Legislation)
	collect("jurisprudență", lr.Jurisprudence)

	sort.SliceStable(considered, func(i, j int) bool {
		return considered[i].entry.FetchedAt.Before(considered[j].entry.FetchedAt)
	})

	var lines []string
	if b.pruneThreshold > 0 && len(considered) > b.pruneThreshold {
		pruned := len(considered) - b.pruneThreshold
		considered = considered[pruned:]
		lines = append(lines, fmt.Sprintf("(%d mențiuni considerate mai vechi, netriate încă)", pruned))
	}
	render := func(t tagged) string {
		line := fmt.Sprintf("- %s [%s] %s", t.kind, t.entry.Status, t.entry.DocID)
		if t.entry.Title != "" {
			line += fmt.Sprintf(" „%s”", t.entry.Title)
		}
		if t.entry.Relevance != "" {
			line += ": " + t.entry.Relevance
		}
		return line
	}
	for _, t := range considered {
		lines = append(lines, render(t))
	}
	for _, t := range applied {
		lines = append(lines, render(t))
	}
	return lines
}

func journalLines(log []casefile.LogEntry) []string {
	lines := make([]string, 0, len(log))
	for _, e := range log {
		label := e.Kind
		switch {
		case e.Tool != "":
			label = e.Kind + "/" + e.Tool
		case e.Node != "":
			label = e.Kind + "/" + e.Node
		}
		lines = append(lines, fmt.Sprintf("- %s %s: %s",
			e.Timestamp.Format("2006-01-02 15:04"), label, e.Summary))
	}
	return lines
}
