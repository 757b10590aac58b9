package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/orchestrator"
	"github.com/causahq/causa/pkg/prompt"
	"github.com/causahq/causa/pkg/tools"
)

// fullTextExcerptBytes bounds each fetched full text inside the follow-up
// consultation question.
const fullTextExcerptBytes = 6000

// research turns a planner topic into one knowledge-base query. The model
// shapes the query, the tool runs it, new references land in the context
// tree, and the reasoner is always consulted next to judge applicability and
// full-text needs.
type research struct{}

func (research) Name() string { return orchestrator.NodeResearch }

type researchQuery struct {
	Source   string   `json:"source"`
	Keywords []string `json:"keywords"`
	Mode     string   `json:"mode"`
	DocIDs   []string `json:"doc_ids"`
}

func (n research) Run(ctx context.Context, t *orchestrator.Turn) (orchestrator.NodeResult, error) {
	limit := t.Services.Config.ResearchSummaryLimit
	if limit <= 0 {
		return orchestrator.NodeResult{}, fault.New(fault.Validation, component, n.Name(),
			"research is disabled: research_summary_limit is 0", nil)
	}
	topic := stringInput(t, "research_topic")
	if topic == "" {
		return orchestrator.NodeResult{}, fault.New(fault.PermanentBackend, component, n.Name(),
			"research requested without a topic", nil)
	}

	digest, err := t.Digest()
	if err != nil {
		return orchestrator.NodeResult{}, err
	}
	session, err := t.AssistantSessionID(ctx)
	if err != nil {
		return orchestrator.NodeResult{}, err
	}

	var q researchQuery
	if err := modelJSON(ctx, t, t.Services.LLM.Assistant, n.Name(), session,
		prompt.SystemResearchQuery, prompt.ResearchQueryUser(digest, topic), &q,
		func() string {
			if q.Source != "legislation" && q.Source != "jurisprudence" {
				return "câmpul source trebuie să fie legislation sau jurisprudence"
			}
			switch q.Mode {
			case "summaries":
				if len(q.Keywords) == 0 {
					return "modul summaries cere cel puțin un cuvânt-cheie"
				}
			case "full_text":
				if len(q.DocIDs) == 0 {
					return "modul full_text cere doc_ids"
				}
			default:
				return "câmpul mode trebuie să fie summaries sau full_text"
			}
			return ""
		}); err != nil {
		return orchestrator.NodeResult{}, err
	}

	known := knownDocIDs(&t.Details)
	if q.Mode == "full_text" {
		for _, id := range q.DocIDs {
			if !known[id] {
				// Full text is only fetched for documents the case already
				// identified; anything else goes back through summaries.
				q.Mode = "summaries"
				q.DocIDs = nil
				if len(q.Keywords) == 0 {
					q.Keywords = fallbackKeywords(topic)
				}
				break
			}
		}
	}

	res := callTool(ctx, t, tools.NameResearchQuery, map[string]any{
		"source":   q.Source,
		"keywords": q.Keywords,
		"mode":     q.Mode,
		"doc_ids":  q.DocIDs,
	})
	if !res.OK {
		return orchestrator.NodeResult{}, resultFault(tools.NameResearchQuery, res)
	}
	records, _ := res.Value["records"].([]any)

	path := "legal_research.legislation"
	if q.Source == "jurisprudence" {
		path = "legal_research.jurisprudence"
	}

	entries := make([]any, 0, len(records))
	var fullTexts []string
	for _, raw := range records {
		rec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		docID, _ := rec["doc_id"].(string)
		if docID == "" {
			continue
		}
		title, _ := rec["title"].(string)
		if ft, _ := rec["full_text"].(string); ft != "" {
			fullTexts = append(fullTexts,
				fmt.Sprintf("### %s (%s)\n%s", title, docID, truncateText(ft, fullTextExcerptBytes)))
		}
		if known[docID] {
			continue
		}
		known[docID] = true
		entry := map[string]any{"doc_id": docID}
		if title != "" {
			entry["title"] = title
		}
		if summary, _ := rec["summary"].(string); summary != "" {
			entry["summary"] = summary
		}
		entries = append(entries, entry)
	}

	updates := map[string]any{
		"agent_interactions.log": journal(journalEntry("tool_call", n.Name(), tools.NameResearchQuery,
			fmtSummary("%s/%s: %d rezultate, %d noi", q.Source, q.Mode, len(records), len(entries)),
			map[string]any{"source": q.Source, "mode": q.Mode, "keywords": q.Keywords})),
	}
	if len(entries) > 0 {
		updates[path] = entries
	}
	if err := t.Apply(ctx, updates); err != nil {
		return orchestrator.NodeResult{}, err
	}

	return orchestrator.Continue(orchestrator.NodeConsultReasoner,
		map[string]any{"question": researchConsultQuestion(topic, q.Mode, fullTexts)}), nil
}

// researchConsultQuestion frames the mandatory follow-up consultation: which
// of the recorded results apply, and whether any need a full-text read.
func researchConsultQuestion(topic, mode string, fullTexts []string) string {
	if mode == "full_text" && len(fullTexts) > 0 {
		return "Analizează textele integrale de mai jos în raport cu obiectivele dosarului și arată ce prevederi se aplică.\n\n" +
			strings.Join(fullTexts, "\n\n")
	}
	return fmt.Sprintf("Cercetarea pe tema „%s” a fost consemnată la secțiunea de cercetare juridică. "+
		"Care dintre documentele consemnate se aplică obiectivelor dosarului, și pentru care este nevoie de textul integral?", topic)
}

// knownDocIDs indexes every reference already recorded on the case.
func knownDocIDs(d *casefile.Details) map[string]bool {
	known := make(map[string]bool,
		len(d.LegalResearch.Legislation)+len(d.LegalResearch.Jurisprudence))
	for _, e := range d.LegalResearch.Legislation {
		known[e.DocID] = true
	}
	for _, e := range d.LegalResearch.Jurisprudence {
		known[e.DocID] = true
	}
	return known
}

// fallbackKeywords derives a keyword list from the topic when the model gave
// none to fall back on.
func fallbackKeywords(topic string) []string {
	words := strings.Fields(topic)
	if len(words) > 6 {
		words = words[:6]
	}
	return words
}
