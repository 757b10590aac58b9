// Package redact is the PII firewall. Every prompt-bound string is screened
// against Romanian identifier patterns and against the stored field values
// of the parties attached to the case; a hit aborts the call before any
// bytes leave the process. Draft markdown gets the same treatment with
// {{partyN.field}} placeholders exempted.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/causahq/causa/pkg/fault"
)

// Romanian identifier patterns. A CNP is exactly 13 digits; fiscal codes
// carry the RO prefix; trade register numbers look like J40/123/2020.
var (
	cnpPattern      = regexp.MustCompile(`\b\d{13}\b`)
	fiscalPattern   = regexp.MustCompile(`\bRO\d+\b`)
	registryPattern = regexp.MustCompile(`\bJ\d+/\d+/\d+\b`)

	placeholderPattern = regexp.MustCompile(`\{\{party(\d+)\.([a-z_][a-z0-9_]*)\}\}`)
)

// Hit is one redaction finding. Value is masked so hits are safe to journal.
type Hit struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Guard screens text against the identifier patterns plus known party field
// values. Build one per request from the attached parties.
type Guard struct {
	values []string
}

// NewGuard builds a guard from party field values. Values shorter than
// three characters are dropped, they match too much.
func NewGuard(values ...string) *Guard {
	g := &Guard{}
	g.Add(values...)
	return g
}

// Add registers more guarded values.
func (g *Guard) Add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if len(v) < 3 {
			continue
		}
		g.values = append(g.values, strings.ToLower(v))
	}
}

// Screen reports every pattern hit and guarded-value match in text.
// Guarded values match case-insensitively as substrings.
func (g *Guard) Screen(text string) []Hit {
	var hits []Hit
	for _, m := range cnpPattern.FindAllString(text, -1) {
		hits = append(hits, Hit{Kind: "cnp", Value: mask(m)})
	}
	for _, m := range fiscalPattern.FindAllString(text, -1) {
		hits = append(hits, Hit{Kind: "fiscal_code", Value: mask(m)})
	}
	for _, m := range registryPattern.FindAllString(text, -1) {
		hits = append(hits, Hit{Kind: "trade_register", Value: mask(m)})
	}
	if g == nil || len(g.values) == 0 {
		return hits
	}
	lower := strings.ToLower(text)
	for _, v := range g.values {
		if strings.Contains(lower, v) {
			hits = append(hits, Hit{Kind: "party_value", Value: mask(v)})
		}
	}
	return hits
}

// Mask rewrites text so it passes Screen: identifier patterns and guarded
// party values are replaced with their masked shapes. Attachment text runs
// through this before prompt assembly, since uploaded contracts legitimately
// contain the identifiers the guard protects.
func (g *Guard) Mask(text string) string {
	out := Sanitize(text)
	if g == nil || len(g.values) == 0 {
		return out
	}
	values := make([]string, len(g.values))
	copy(values, g.values)
	// Longest first, so "ion popescu" is masked before "ion" can split it.
	sort.Slice(values, func(i, j int) bool { return len(values[i]) > len(values[j]) })
	for _, v := range values {
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(v))
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, mask(v))
	}
	return out
}

// ScreenPrompt validates every prompt-bound string and fails with a
// pii_violation on the first dirty one. Nothing is sent when it fails.
func ScreenPrompt(g *Guard, texts ...string) error {
	var all []Hit
	for _, t := range texts {
		all = append(all, g.Screen(t)...)
	}
	if len(all) == 0 {
		return nil
	}
	return fault.New(fault.PIIViolation, "redact", "screen_prompt", summarize(all), nil)
}

// ScanDraftMarkdown screens draft markdown before generate_draft
// submission. Placeholder tokens are exempt; everything else must be clean.
func ScanDraftMarkdown(g *Guard, markdown string) error {
	stripped := placeholderPattern.ReplaceAllString(markdown, " ")
	if hits := g.Screen(stripped); len(hits) > 0 {
		return fault.New(fault.PIIViolation, "redact", "scan_draft", summarize(hits), nil)
	}
	return nil
}

// PlaceholderRef is one {{partyN.field}} occurrence in a draft. Index is
// the N, a position into the case's attached_parties.
type PlaceholderRef struct {
	Index int
	Field string
	Token string
}

// Placeholders extracts every placeholder token from markdown, in order of
// appearance, duplicates included.
func Placeholders(markdown string) []PlaceholderRef {
	matches := placeholderPattern.FindAllStringSubmatch(markdown, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]PlaceholderRef, 0, len(matches))
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		refs = append(refs, PlaceholderRef{Index: idx, Field: m[2], Token: m[0]})
	}
	return refs
}

// Sanitize masks identifier patterns in text so error summaries and journal
// payloads never echo what they flag.
func Sanitize(text string) string {
	out := cnpPattern.ReplaceAllStringFunc(text, mask)
	out = fiscalPattern.ReplaceAllStringFunc(out, mask)
	return registryPattern.ReplaceAllStringFunc(out, mask)
}

// mask keeps the shape of a finding without echoing it.
func mask(v string) string {
	r := []rune(v)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}

func summarize(hits []Hit) string {
	counts := make(map[string]int, 4)
	for _, h := range hits {
		counts[h.Kind]++
	}
	parts := make([]string, 0, len(counts))
	for _, kind := range []string{"cnp", "fiscal_code", "trade_register", "party_value"} {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s x%d", kind, n))
		}
	}
	return "blocked content: " + strings.Join(parts, ", ")
}
