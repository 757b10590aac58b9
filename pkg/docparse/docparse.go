// Package docparse extracts plain text from documents clients attach to
// their cases. Attachments live in the object store as raw bytes, so every
// parser works in memory; the extracted text feeds the assistant's document
// analysis and never leaves the process.
package docparse

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/causahq/causa/pkg/fault"
)

// maxDocumentBytes bounds how large an attachment the parsers will accept.
const maxDocumentBytes = 20 << 20

// maxCellsPerSheet bounds spreadsheet extraction so a dense workbook cannot
// flood the analysis prompt.
const maxCellsPerSheet = 1000

// Result holds the text extracted from one attachment.
type Result struct {
	Text     string
	Kind     string
	Metadata map[string]string
}

// Parser extracts text from one document format.
type Parser interface {
	CanParse(name string) bool
	Parse(ctx context.Context, data []byte) (*Result, error)
	Extensions() []string
}

// Registry routes an attachment to the parser for its extension.
type Registry struct {
	parsers []Parser
}

// NewRegistry builds a registry with the built-in parsers.
func NewRegistry() *Registry {
	return &Registry{parsers: []Parser{
		&pdfParser{},
		&docxParser{},
		&xlsxParser{},
		&textParser{},
	}}
}

// Supported reports whether any parser handles the file.
func (r *Registry) Supported(name string) bool {
	return r.find(name) != nil
}

// Extensions returns every extension the registry handles.
func (r *Registry) Extensions() []string {
	var extensions []string
	for _, parser := range r.parsers {
		extensions = append(extensions, parser.Extensions()...)
	}
	return extensions
}

// Parse extracts text from the named attachment. Unreadable or unsupported
// documents are validation faults: the problem sits with the upload, and
// retrying cannot fix it.
func (r *Registry) Parse(ctx context.Context, name string, data []byte) (*Result, error) {
	if len(data) > maxDocumentBytes {
		return nil, fault.New(fault.Validation, "docparse", "parse",
			fmt.Sprintf("document %q is larger than %d bytes", name, maxDocumentBytes), nil)
	}
	parser := r.find(name)
	if parser == nil {
		return nil, fault.New(fault.Validation, "docparse", "parse",
			fmt.Sprintf("no parser for %q (supported: %s)",
				filepath.Ext(name), strings.Join(r.Extensions(), ", ")), nil)
	}
	return parser.Parse(ctx, data)
}

func (r *Registry) find(name string) Parser {
	for _, parser := range r.parsers {
		if parser.CanParse(name) {
			return parser
		}
	}
	return nil
}

type pdfParser struct{}

func (p *pdfParser) CanParse(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

func (p *pdfParser) Extensions() []string { return []string{".pdf"} }

func (p *pdfParser) Parse(ctx context.Context, data []byte) (result *Result, err error) {
	// The pdf library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fault.New(fault.Validation, "docparse", "parse_pdf",
				fmt.Sprintf("malformed pdf: %v", r), nil)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.New(fault.Validation, "docparse", "parse_pdf",
			"reading pdf failed", err)
	}

	var parts []string
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.DeadlineExceeded, "docparse", "parse_pdf",
				"extraction interrupted", err)
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Pagina %d (textul nu a putut fi extras) ---", pageNum))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Pagina %d ---\n%s", pageNum, strings.TrimSpace(text)))
		}
	}

	text := strings.Join(parts, "\n\n")
	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.Validation, "docparse", "parse_pdf",
			"pdf contains no extractable text (a scanned image needs OCR)", nil)
	}
	return &Result{
		Text: text,
		Kind: "pdf",
		Metadata: map[string]string{
			"pages":      strconv.Itoa(totalPages),
			"word_count": strconv.Itoa(len(strings.Fields(text))),
		},
	}, nil
}

type docxParser struct{}

func (p *docxParser) CanParse(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".docx")
}

func (p *docxParser) Extensions() []string { return []string{".docx"} }

func (p *docxParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.New(fault.Validation, "docparse", "parse_docx",
			"reading docx failed", err)
	}
	defer doc.Close()

	text, err := flattenWordXML(doc.Editable().GetContent())
	if err != nil {
		return nil, fault.New(fault.Validation, "docparse", "parse_docx",
			"docx body is not valid xml", err)
	}
	if text == "" {
		return nil, fault.New(fault.Validation, "docparse", "parse_docx",
			"docx contains no text", nil)
	}

	return &Result{
		Text: text,
		Kind: "docx",
		Metadata: map[string]string{
			"paragraphs": strconv.Itoa(len(strings.Split(text, "\n"))),
			"word_count": strconv.Itoa(len(strings.Fields(text))),
		},
	}, nil
}

// flattenWordXML reduces a document.xml body to readable text. Only w:t runs
// carry text; w:p ends mark paragraph breaks, w:tab and w:br are honored.
func flattenWordXML(content string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))
	var b strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			switch tok.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch tok.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(tok)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

type xlsxParser struct{}

func (p *xlsxParser) CanParse(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".xlsx")
}

func (p *xlsxParser) Extensions() []string { return []string{".xlsx"} }

func (p *xlsxParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fault.New(fault.Validation, "docparse", "parse_xlsx",
			"reading xlsx failed", err)
	}
	defer f.Close()

	var parts []string
	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, fault.New(fault.DeadlineExceeded, "docparse", "parse_xlsx",
				"extraction interrupted", err)
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Foaia: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			sheetText.WriteString("(foaia nu a putut fi citită)\n")
			parts = append(parts, strings.TrimSpace(sheetText.String()))
			continue
		}

		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= maxCellsPerSheet {
				sheetText.WriteString("... (trunchiat)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= maxCellsPerSheet {
					break
				}
				text := strings.TrimSpace(cell)
				if text == "" {
					continue
				}
				cellRef, _ := excelize.CoordinatesToCellName(colIndex+1, rowIndex+1)
				sheetText.WriteString(fmt.Sprintf("%s: %s\n", cellRef, text))
				cellCount++
			}
		}
		parts = append(parts, strings.TrimSpace(sheetText.String()))
	}

	text := strings.Join(parts, "\n\n")
	return &Result{
		Text: text,
		Kind: "xlsx",
		Metadata: map[string]string{
			"sheets":     strconv.Itoa(len(sheets)),
			"word_count": strconv.Itoa(len(strings.Fields(text))),
		},
	}, nil
}

type textParser struct{}

func (p *textParser) CanParse(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".txt" || ext == ".md"
}

func (p *textParser) Extensions() []string { return []string{".txt", ".md"} }

func (p *textParser) Parse(ctx context.Context, data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fault.New(fault.Validation, "docparse", "parse_text",
			"text file is not valid utf-8", nil)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fault.New(fault.Validation, "docparse", "parse_text",
			"text file is empty", nil)
	}
	return &Result{
		Text: text,
		Kind: "text",
		Metadata: map[string]string{
			"word_count": strconv.Itoa(len(strings.Fields(text))),
		},
	}, nil
}
