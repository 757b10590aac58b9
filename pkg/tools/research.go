package tools

import (
	"context"

	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/kb"
)

// ResearchQueryParams describes one knowledge base lookup.
type ResearchQueryParams struct {
	Source   string   `json:"source" jsonschema:"enum=legislation,enum=jurisprudence,description=Corpusul interogat"`
	Keywords []string `json:"keywords,omitempty" jsonschema:"description=Cuvinte-cheie pentru modul summaries"`
	Mode     string   `json:"mode" jsonschema:"enum=summaries,enum=full_text,description=summaries pentru identificare și full_text pentru textul integral al documentelor numite"`
	DocIDs   []string `json:"doc_ids,omitempty" jsonschema:"description=Identificatorii documentelor cerute în modul full_text"`
}

// ResearchRecord is one match, shaped for the assistant.
type ResearchRecord struct {
	DocID    string `json:"doc_id"`
	Title    string `json:"title"`
	Summary  string `json:"summary,omitempty"`
	FullText string `json:"full_text,omitempty"`
}

// ResearchQueryResult carries the matches.
type ResearchQueryResult struct {
	Records []ResearchRecord `json:"records"`
}

type researchQueryTool struct {
	kb    kb.KnowledgeBase
	limit int
	info  Descriptor
}

func newResearchQuery(knowledge kb.KnowledgeBase, summaryLimit int) *researchQueryTool {
	return &researchQueryTool{
		kb:    knowledge,
		limit: summaryLimit,
		info: Descriptor{
			Name:            NameResearchQuery,
			Description:     "Caută în baza de cunoștințe juridice: legislație românească sau jurisprudență. Nu modifică dosarul.",
			ParameterSchema: mustSchema(&ResearchQueryParams{}),
			ResultSchema:    mustSchema(&ResearchQueryResult{}),
			ErrorTaxonomy:   []fault.Kind{fault.Validation, fault.QuotaExceeded, fault.TransientBackend, fault.PermanentBackend},
			Idempotent:      true,
		},
	}
}

func (t *researchQueryTool) Name() string     { return t.info.Name }
func (t *researchQueryTool) Info() Descriptor { return t.info }

func (t *researchQueryTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	if t.limit <= 0 {
		return Result{}, fault.New(fault.Validation, component, t.Name(),
			"research_summary_limit is 0, research is disabled by configuration", nil)
	}
	var p ResearchQueryParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}
	records, err := t.kb.Query(ctx, kb.QueryDescriptor{
		Source:   kb.Source(p.Source),
		Keywords: p.Keywords,
		Mode:     kb.Mode(p.Mode),
		DocIDs:   p.DocIDs,
		Limit:    t.limit,
	})
	if err != nil {
		return Result{}, err
	}
	out := ResearchQueryResult{Records: make([]ResearchRecord, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, ResearchRecord{
			DocID:    r.DocID,
			Title:    r.Title,
			Summary:  r.Summary,
			FullText: r.FullText,
		})
	}
	value, err := toValueMap(t.Name(), out)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}
