package entity

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CheckResult reports whether generated content names the same vehicle as
// the trusted source title. FixedContent carries the repaired text when a
// model mismatch was auto-fixed, and is empty otherwise; the original
// content is never mutated, so callers decide whether to trust the fix.
type CheckResult struct {
	Valid        bool      `json:"valid"`
	Source       EntitySet `json:"source"`
	Generated    EntitySet `json:"generated"`
	Mismatches   []string  `json:"mismatches,omitempty"`
	Fixed        bool      `json:"fixed"`
	FixedContent string    `json:"fixed_content,omitempty"`
}

var (
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,2}\s+(.+)$`)
	htmlTagRe   = regexp.MustCompile(`<[^>]+>`)
)

// Validate compares the entities in generated content against those parsed
// from the source title. Model, year and brand are each compared and every
// difference becomes a mismatch. The model is the only entity that gets an
// auto-fix: a generated draft titled "Seal 07" for a source about the
// "Seal 06" is a different product, so the wrong model is rewritten
// everywhere it appears and the repaired text returned as FixedContent.
// When the source title yields no model there is nothing to check and the
// content passes unchanged.
func (x *Extractor) Validate(sourceTitle, content string) CheckResult {
	source := x.ExtractEntities(sourceTitle)
	result := CheckResult{
		Valid:  true,
		Source: source,
	}
	if source.Model == "" {
		return result
	}

	heading := firstHeading(content)
	if heading == "" {
		return result
	}
	generated := x.ExtractEntities(heading)
	result.Generated = generated

	if generated.Model != "" && !modelsMatch(source.Model, generated.Model) {
		result.Mismatches = append(result.Mismatches,
			"model: source="+source.Model+" generated="+generated.Model)
		result.FixedContent = replaceAllFold(content, generated.Model, source.Model)
		result.Fixed = true
	}
	if source.Year != "" && generated.Year != "" && source.Year != generated.Year {
		result.Mismatches = append(result.Mismatches,
			"year: source="+source.Year+" generated="+generated.Year)
	}
	if source.Brand != "" && generated.Brand != "" && !strings.EqualFold(source.Brand, generated.Brand) {
		result.Mismatches = append(result.Mismatches,
			"brand: source="+source.Brand+" generated="+generated.Brand)
	}

	result.Valid = len(result.Mismatches) == 0
	return result
}

// modelsMatch applies the deliberately narrow fuzzy rule: two model names
// are the same product only when they differ by nothing but letter case or
// whitespace. "Seal 06" vs "seal06" matches; "Seal 06" vs "Seal 07" never
// does.
func modelsMatch(a, b string) bool {
	collapse := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	if collapse(a) == collapse(b) {
		return true
	}
	strip := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), ""))
	}
	return strip(a) == strip(b)
}

// firstHeading pulls the first h1/h2 text out of markdown or HTML content,
// falling back to the first non-empty line.
func firstHeading(content string) string {
	if strings.Contains(content, "<h1") || strings.Contains(content, "<h2") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err == nil {
			if text := strings.TrimSpace(doc.Find("h1, h2").First().Text()); text != "" {
				return text
			}
		}
	}
	if m := mdHeadingRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(htmlTagRe.ReplaceAllString(m[1], ""))
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return htmlTagRe.ReplaceAllString(line, "")
		}
	}
	return ""
}

// replaceAllFold rewrites every case-insensitive occurrence of old in s.
func replaceAllFold(s, old, new string) string {
	if old == "" {
		return s
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(old))
	return re.ReplaceAllString(s, new)
}
