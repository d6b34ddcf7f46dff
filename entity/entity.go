package entity

import (
	"fmt"
	"regexp"
	"strings"
)

// EntitySet holds the identifying entities parsed from an article title.
type EntitySet struct {
	Year       string `json:"year,omitempty"`
	Brand      string `json:"brand,omitempty"`
	Model      string `json:"model,omitempty"`
	Powertrain string `json:"powertrain,omitempty"`
}

// FullName renders the canonical "year brand model" display form, skipping
// whichever parts are absent.
func (e EntitySet) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Year, e.Brand, e.Model} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func (e EntitySet) String() string {
	return fmt.Sprintf("year=%q brand=%q model=%q powertrain=%q", e.Year, e.Brand, e.Model, e.Powertrain)
}

var (
	yearRe       = regexp.MustCompile(`\b(20[2-3][0-9])\b`)
	powertrainRe = regexp.MustCompile(`\b(PHEV|BEV|EREV|HEV|EV|Hybrid|Plug-in Hybrid)\b`)
	priceRe      = regexp.MustCompile(`(?:[$€£¥]\s?[\d,]+(?:\.\d+)?[kK]?|[\d.]+\s*万元?|\b[\d,]+\s*(?:USD|CNY|RMB|EUR)\b)`)
	specTokenRe  = regexp.MustCompile(`(?i)\b\d[\d,.]*\s*(?:hp|bhp|ps|kw|kwh|nm|km|mi|miles|mph|km/h|kg|lbs|seats?|马力|千瓦|牛米|公里)\b`)
	emojiRe      = regexp.MustCompile(`[\x{1F000}-\x{1FAFF}\x{2600}-\x{27BF}\x{FE0F}\x{2B00}-\x{2BFF}]`)
	spaceRe      = regexp.MustCompile(`\s+`)
	punctTrimRe  = regexp.MustCompile(`^[\s\p{P}]+|[\s\p{P}]+$`)
)

// descriptorWords are title filler that never belongs to a model name.
var descriptorWords = map[string]bool{
	"review":     true,
	"first":      true,
	"drive":      true,
	"test":       true,
	"walkaround": true,
	"look":       true,
	"pov":        true,
	"specs":      true,
	"spec":       true,
	"price":      true,
	"prices":     true,
	"interior":   true,
	"exterior":   true,
	"launch":     true,
	"launched":   true,
	"revealed":   true,
	"reveal":     true,
	"unveiled":   true,
	"official":   true,
	"new":        true,
	"all-new":    true,
	"vs":         true,
	"vs.":        true,
	"at":         true,
	"from":       true,
	"in":         true,
	"试驾":         true,
	"评测":         true,
	"the":        true,
	"china":      true,
	"japan":      true,
	"germany":    true,
	"europe":     true,
	"usa":        true,
	"us":         true,
	"uk":         true,
	"korea":      true,
}

// Extractor parses entities from titles and generated drafts using an
// injectable brand alias table.
type Extractor struct {
	aliases *AliasTable
}

// NewExtractor builds an Extractor. A nil table falls back to the built-in
// brand set.
func NewExtractor(table *AliasTable) *Extractor {
	if table == nil {
		table = DefaultAliasTable()
	}
	return &Extractor{aliases: table}
}

// Aliases exposes the underlying table, for hot reload wiring.
func (x *Extractor) Aliases() *AliasTable { return x.aliases }

// ExtractEntities parses year, brand, model and powertrain out of a video or
// article title. The model is whatever survives after the known parts and
// filler are removed, so an unknown model name still comes through intact.
func (x *Extractor) ExtractEntities(title string) EntitySet {
	cleaned := CleanTitle(title)

	var set EntitySet

	if m := yearRe.FindString(cleaned); m != "" {
		set.Year = m
		cleaned = strings.Replace(cleaned, m, " ", 1)
	}

	if m := powertrainRe.FindString(cleaned); m != "" {
		set.Powertrain = normalizePowertrain(m)
		cleaned = strings.Replace(cleaned, m, " ", 1)
	}

	if raw, canonical, ok := x.aliases.Match(cleaned); ok {
		set.Brand = canonical
		cleaned = strings.Replace(cleaned, raw, " ", 1)
		for _, sub := range x.aliases.SubBrands(canonical) {
			cleaned = replaceFold(cleaned, sub, " ")
		}
	}

	set.Model = trimModel(cleaned)
	return set
}

// CleanTitle strips site suffixes, emoji, prices and free-standing spec
// tokens from a raw title so entity parsing sees only the vehicle words.
func CleanTitle(title string) string {
	// "2025 ZEEKR 7X Review | CarNewsChina" -> keep the part before the pipe.
	if idx := strings.IndexAny(title, "|"); idx > 0 {
		title = title[:idx]
	}
	title = emojiRe.ReplaceAllString(title, " ")
	title = priceRe.ReplaceAllString(title, " ")
	title = specTokenRe.ReplaceAllString(title, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(title, " "))
}

// trimModel removes descriptor words and stray punctuation from the model
// remainder while preserving internal order. Taglines after a colon or dash
// ("7X: A Serious Tesla Rival") are not part of the model name.
func trimModel(s string) string {
	s = punctTrimRe.ReplaceAllString(s, "")
	for _, sep := range []string{":", " - ", "–", "—"} {
		if idx := strings.Index(s, sep); idx >= 0 {
			s = s[:idx]
		}
	}
	words := strings.Fields(s)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		bare := strings.Trim(strings.ToLower(w), ".,:;!?()[]\"'")
		if descriptorWords[bare] {
			continue
		}
		kept = append(kept, strings.Trim(w, ".,:;!?()[]\"'"))
	}
	return strings.Join(kept, " ")
}

func normalizePowertrain(s string) string {
	switch strings.ToUpper(s) {
	case "PLUG-IN HYBRID":
		return "PHEV"
	case "HYBRID":
		return "Hybrid"
	default:
		return strings.ToUpper(s)
	}
}

// replaceFold replaces the first case-insensitive occurrence of old in s.
func replaceFold(s, old, new string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(old))
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}
