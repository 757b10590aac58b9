package tools

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/causahq/causa/pkg/casefile"
	"github.com/causahq/causa/pkg/casestore"
	"github.com/causahq/causa/pkg/fault"
	"github.com/causahq/causa/pkg/objectstore"
	"github.com/causahq/causa/pkg/redact"
)

// GenerateDraftParams carries the placeholder-only markdown the assistant
// wrote plus the target name and revision. The revision is computed by the
// caller after object store reconciliation; the tool refuses to overwrite.
type GenerateDraftParams struct {
	CaseID    string `json:"case_id" jsonschema:"minLength=1,description=Identificatorul dosarului"`
	DraftName string `json:"draft_name" jsonschema:"minLength=1,description=Numele tehnic al documentului: scurt și fără spații"`
	Markdown  string `json:"markdown" jsonschema:"minLength=1,description=Documentul complet în Markdown cu substituenți {{partyN.câmp}} în locul datelor personale"`
	Revision  int    `json:"revision" jsonschema:"minimum=1,description=Numărul acestei versiuni"`
}

// GenerateDraftResult points at the stored PDF.
type GenerateDraftResult struct {
	ObjectPath string `json:"object_path"`
	DraftID    string `json:"draft_id"`
}

// partyResolver is the slice of the party store the draft tool needs: the
// guard builder plus the attachment-checked field resolver.
type partyResolver interface {
	guardSource
	ResolveForDraft(ctx context.Context, caseID string, attached []casefile.AttachedParty, partyID string, fields []string) (map[string]string, error)
}

type generateDraftTool struct {
	store   casestore.Store
	parties partyResolver
	objects objectstore.Store
	info    Descriptor
}

func newGenerateDraft(store casestore.Store, parties partyResolver, objects objectstore.Store) *generateDraftTool {
	return &generateDraftTool{
		store:   store,
		parties: parties,
		objects: objects,
		info: Descriptor{
			Name:            NameGenerateDraft,
			Description:     "Transformă un document Markdown cu substituenți {{partyN.câmp}} în PDF-ul final: verifică absența datelor personale, completează substituenții din evidența părților și încarcă rezultatul.",
			ParameterSchema: mustSchema(&GenerateDraftParams{}),
			ResultSchema:    mustSchema(&GenerateDraftResult{}),
			ErrorTaxonomy: []fault.Kind{fault.Validation, fault.Authorization, fault.NotFound,
				fault.PIIViolation, fault.TransientBackend, fault.PermanentBackend},
			PIICapable: true,
		},
	}
}

func (t *generateDraftTool) Name() string     { return t.info.Name }
func (t *generateDraftTool) Info() Descriptor { return t.info }

func (t *generateDraftTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	var p GenerateDraftParams
	if err := decodeArgs(t.Name(), args, &p); err != nil {
		return Result{}, err
	}

	c, _, _, err := t.store.Load(ctx, p.CaseID)
	if err != nil {
		return Result{}, err
	}
	guard, err := t.parties.GuardFor(ctx, c.AttachedParties)
	if err != nil {
		return Result{}, err
	}
	if err := redact.ScanDraftMarkdown(guard, p.Markdown); err != nil {
		return Result{}, err
	}

	substituted, err := t.substitute(ctx, &c, p.Markdown)
	if err != nil {
		return Result{}, err
	}

	path := objectstore.DraftPath(c.ID, p.DraftName, p.Revision)
	exists, err := t.objects.Exists(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{}, fault.New(fault.Validation, component, t.Name(),
			fmt.Sprintf("revision %d of draft '%s' is already stored; pick the next revision", p.Revision, p.DraftName), nil)
	}

	pdfBytes, err := renderDraftPDF(substituted)
	if err != nil {
		return Result{}, fault.New(fault.PermanentBackend, component, t.Name(), "rendering pdf", err)
	}
	if err := t.objects.Put(ctx, path, pdfBytes, "application/pdf"); err != nil {
		return Result{}, err
	}

	value, err := toValueMap(t.Name(), GenerateDraftResult{ObjectPath: path, DraftID: uuid.NewString()})
	if err != nil {
		return Result{}, err
	}
	return Result{Value: value}, nil
}

// substitute resolves every {{partyN.field}} token against the attached
// parties, N being the 1-based position in attached_parties. Resolution is
// batched per party so the store authorizes each party exactly once.
func (t *generateDraftTool) substitute(ctx context.Context, c *casefile.Case, markdown string) (string, error) {
	refs := redact.Placeholders(markdown)
	if len(refs) == 0 {
		return markdown, nil
	}

	fieldsByIndex := make(map[int][]string)
	for _, ref := range refs {
		if ref.Index < 1 || ref.Index > len(c.AttachedParties) {
			return "", fault.New(fault.Validation, component, t.Name(),
				fmt.Sprintf("%s references party %d but the case has %d attached parties",
					ref.Token, ref.Index, len(c.AttachedParties)), nil)
		}
		if !contains(fieldsByIndex[ref.Index], ref.Field) {
			fieldsByIndex[ref.Index] = append(fieldsByIndex[ref.Index], ref.Field)
		}
	}

	indexes := make([]int, 0, len(fieldsByIndex))
	for idx := range fieldsByIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	pairs := make([]string, 0, 2*len(refs))
	for _, idx := range indexes {
		partyID := c.AttachedParties[idx-1].PartyID
		values, err := t.parties.ResolveForDraft(ctx, c.ID, c.AttachedParties, partyID, fieldsByIndex[idx])
		if err != nil {
			return "", err
		}
		for field, value := range values {
			pairs = append(pairs, fmt.Sprintf("{{party%d.%s}}", idx, field), value)
		}
	}
	return strings.NewReplacer(pairs...).Replace(markdown), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// draftFold transliterates what the core PDF fonts cannot encode. They cover
// cp1252 only, so Romanian diacritics map to their base letters and curly
// quotes to plain ones. Diacritic-free documents are accepted practice in
// Romanian e-filing.
var draftFold = strings.NewReplacer(
	"ă", "a", "Ă", "A", "â", "a", "Â", "A", "î", "i", "Î", "I",
	"ș", "s", "Ș", "S", "ş", "s", "Ş", "S",
	"ț", "t", "Ț", "T", "ţ", "t", "Ţ", "T",
	"„", "\"", "”", "\"", "“", "\"", "«", "\"", "»", "\"",
	"’", "'", "‘", "'", "–", "-", "—", "-",
)

// flattenInline drops the markdown emphasis markers the renderer does not
// style and folds the text for the cp1252 fonts.
func flattenInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return draftFold.Replace(s)
}

// renderDraftPDF lays the substituted markdown out as an A4 document:
// headings bold with the top level centered, list items indented, blank
// lines as paragraph spacing.
func renderDraftPDF(markdown string) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(25, 25, 25)
	pdf.SetAutoPageBreak(true, 25)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	for _, line := range strings.Split(markdown, "\n") {
		text := flattenInline(strings.TrimSpace(line))
		switch {
		case text == "":
			pdf.Ln(4)
		case strings.HasPrefix(text, "# "):
			pdf.SetFont("Helvetica", "B", 15)
			pdf.MultiCell(0, 8, tr(strings.TrimPrefix(text, "# ")), "", "C", false)
			pdf.Ln(2)
		case strings.HasPrefix(text, "## "):
			pdf.SetFont("Helvetica", "B", 13)
			pdf.MultiCell(0, 7, tr(strings.TrimPrefix(text, "## ")), "", "L", false)
			pdf.Ln(1)
		case strings.HasPrefix(text, "### "):
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 7, tr(strings.TrimPrefix(text, "### ")), "", "L", false)
		case strings.HasPrefix(text, "- "), strings.HasPrefix(text, "* "):
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, tr("-  "+strings.TrimSpace(text[2:])), "", "L", false)
		default:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 6, tr(text), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
