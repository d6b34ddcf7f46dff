// Package extract pulls candidate specification values out of free text.
// Each field maps to an ordered list of pattern+normalizer pairs, so new
// fields and patterns are data, not scattered code. Patterns run over the
// whole input and return all non-overlapping matches in first-seen order;
// the consensus resolver depends on that ordering for its tie-break.
package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360studio/autopress/spec"
)

// Match is one candidate value for a field, with provenance back to the
// source text.
type Match struct {
	// Value is the normalized candidate handed to the consensus resolver.
	Value string

	// Raw is the matched substring before normalization.
	Raw string

	// Offset is the byte offset of the match in the input text.
	Offset int

	// PatternIndex identifies which pattern in the field's table matched.
	PatternIndex int
}

// Normalizer converts a raw regex match into a comparable candidate value.
// Returning an empty string discards the match.
type Normalizer func(groups []string) string

// Pattern pairs a compiled regex with its normalizer.
type Pattern struct {
	Re        *regexp.Regexp
	Normalize Normalizer
}

// kwToHP converts kilowatts to horsepower, rounded to the nearest integer.
// kW-origin matches must be converted before they reach the resolver so
// they vote alongside direct-HP matches.
func kwToHP(kw float64) int {
	return int(math.Round(kw * 1.341))
}

// firstGroup returns the first capture group unchanged.
func firstGroup(groups []string) string {
	if len(groups) > 1 {
		return strings.TrimSpace(groups[1])
	}
	return ""
}

// numberWithUnit builds a "N unit" normalizer.
func numberWithUnit(unit string) Normalizer {
	return func(groups []string) string {
		n := firstGroup(groups)
		if n == "" {
			return ""
		}
		return n + " " + unit
	}
}

// patternTables maps each field to its ordered pattern list. Declaration
// order matters: earlier patterns are the preferred phrasings.
var patternTables = map[spec.FieldKey][]Pattern{
	spec.FieldHorsepower: {
		{
			Re:        regexp.MustCompile(`(?i)(\d{2,4})\s*(?:hp\b|bhp\b|ps\b|马力)`),
			Normalize: numberWithUnit("HP"),
		},
		{
			// kW figures are converted so they are comparable with HP votes.
			Re: regexp.MustCompile(`(?i)(\d{2,4}(?:\.\d+)?)\s*(?:kw\b|千瓦)`),
			Normalize: func(groups []string) string {
				kw, err := strconv.ParseFloat(firstGroup(groups), 64)
				if err != nil || kw <= 0 {
					return ""
				}
				return fmt.Sprintf("%d HP", kwToHP(kw))
			},
		},
	},
	spec.FieldTorque: {
		{
			Re:        regexp.MustCompile(`(?i)(\d{2,4})\s*(?:nm\b|n·m|n-m\b|牛米)`),
			Normalize: numberWithUnit("Nm"),
		},
		{
			Re:        regexp.MustCompile(`(?i)(\d{2,4})\s*(?:lb[- ]?ft|pound[- ]feet)\b`),
			Normalize: numberWithUnit("lb-ft"),
		},
	},
	spec.FieldBattery: {
		{
			Re:        regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d+)?)\s*[\-]?\s*(?:kwh\b|kw·h|度电|度)`),
			Normalize: numberWithUnit("kWh"),
		},
	},
	spec.FieldRange: {
		{
			Re:        regexp.MustCompile(`(?i)(?:range|cltc|wltp|epa|续航)[^\d]{0,12}(\d{2,4})\s*(?:km\b|kilometers\b|公里)`),
			Normalize: numberWithUnit("km"),
		},
		{
			Re:        regexp.MustCompile(`(?i)(?:range|epa)[^\d]{0,12}(\d{2,4})\s*(?:mi|miles)\b`),
			Normalize: numberWithUnit("mi"),
		},
		{
			Re:        regexp.MustCompile(`(?i)(\d{3,4})\s*(?:km\b|公里)\s*(?:of\s+)?(?:range|续航)`),
			Normalize: numberWithUnit("km"),
		},
	},
	spec.FieldAcceleration: {
		{
			Re:        regexp.MustCompile(`(?i)(?:0\s*[-–到]\s*100\s*(?:km/?h)?|零百)[^\d]{0,20}(\d{1,2}(?:\.\d+)?)\s*s(?:ec(?:onds)?)?\b`),
			Normalize: numberWithUnit("s (0-100 km/h)"),
		},
		{
			Re:        regexp.MustCompile(`(?i)(\d{1,2}\.\d+)\s*s(?:ec(?:onds)?)?\s*(?:to|for)?\s*(?:0\s*[-–]\s*100|0\s*to\s*100)`),
			Normalize: numberWithUnit("s (0-100 km/h)"),
		},
	},
	spec.FieldTopSpeed: {
		{
			Re:        regexp.MustCompile(`(?i)(?:top\s+speed|max(?:imum)?\s+speed|最高时速)[^\d]{0,12}(\d{2,3})\s*(?:km/?h|公里)`),
			Normalize: numberWithUnit("km/h"),
		},
		{
			Re:        regexp.MustCompile(`(?i)(?:top\s+speed|max(?:imum)?\s+speed)[^\d]{0,12}(\d{2,3})\s*mph\b`),
			Normalize: numberWithUnit("mph"),
		},
	},
	spec.FieldDrivetrain: {
		{
			Re:        regexp.MustCompile(`(?i)\b(awd|4wd|fwd|rwd)\b`),
			Normalize: func(groups []string) string { return strings.ToUpper(firstGroup(groups)) },
		},
		{
			Re:        regexp.MustCompile(`(?i)\b(all[- ]wheel[- ]drive|four[- ]wheel[- ]drive|front[- ]wheel[- ]drive|rear[- ]wheel[- ]drive|dual[- ]motor)\b`),
			Normalize: firstGroup,
		},
		{
			Re:        regexp.MustCompile(`(四驱|前驱|后驱|两驱)`),
			Normalize: firstGroup,
		},
	},
	spec.FieldPrice: {
		{
			Re:        regexp.MustCompile(`(?i)(?:\$|USD\s?)([\d,]+(?:\.\d+)?)`),
			Normalize: func(groups []string) string { return "$" + strings.ReplaceAll(firstGroup(groups), ",", "") },
		},
		{
			Re:        regexp.MustCompile(`(?i)(?:¥|RMB\s?|人民币)?([\d.]+)\s*万(?:元)?`),
			Normalize: func(groups []string) string { return firstGroup(groups) + "万元" },
		},
		{
			Re:        regexp.MustCompile(`(?i)(?:€|EUR\s?)([\d,]+(?:\.\d+)?)`),
			Normalize: func(groups []string) string { return "€" + strings.ReplaceAll(firstGroup(groups), ",", "") },
		},
	},
	spec.FieldYear: {
		{
			Re:        regexp.MustCompile(`\b(20[2-3]\d)\b`),
			Normalize: firstGroup,
		},
	},
	spec.FieldSeats: {
		{
			Re:        regexp.MustCompile(`(?i)\b([4-9])[- ]seat(?:er|s)?\b`),
			Normalize: firstGroup,
		},
		{
			Re:        regexp.MustCompile(`(?i)(?:seats?|seating)(?:\s+(?:for|up to))?\s+([4-9])\b`),
			Normalize: firstGroup,
		},
	},
	spec.FieldCharging: {
		{
			Re:        regexp.MustCompile(`(?i)(\d{2,3})\s*kw\s+(?:dc\s+)?(?:fast\s+)?charging`),
			Normalize: numberWithUnit("kW charging"),
		},
		{
			Re:        regexp.MustCompile(`(?i)(?:charges?|charging)[^\d.]{0,30}(\d{1,3})\s*(?:min(?:utes)?)\b`),
			Normalize: numberWithUnit("min"),
		},
	},
	spec.FieldWeight: {
		{
			Re:        regexp.MustCompile(`(?i)(?:curb\s+weight|weighs?|整备质量)[^\d]{0,12}([\d,]{4,6})\s*(?:kg\b|千克)`),
			Normalize: func(groups []string) string { return strings.ReplaceAll(firstGroup(groups), ",", "") + " kg" },
		},
	},
	spec.FieldTransmission: {
		{
			Re:        regexp.MustCompile(`(?i)\b(\d)[- ]speed\s+(?:automatic|manual|dct|dual[- ]clutch)`),
			Normalize: func(groups []string) string { return firstGroup(groups) + "-speed" },
		},
		{
			Re:        regexp.MustCompile(`(?i)\b(single[- ]speed|cvt|e-cvt)\b`),
			Normalize: firstGroup,
		},
	},
}

// SupportedFields returns the fields the extractor has patterns for, in
// canonical record order.
func SupportedFields() []spec.FieldKey {
	out := make([]spec.FieldKey, 0, len(patternTables))
	for _, key := range spec.AllFields() {
		if _, ok := patternTables[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

// Extract returns all candidate matches for one field, preserving first-seen
// order within each pattern and applying patterns in declaration order.
func Extract(text string, field spec.FieldKey) []Match {
	patterns, ok := patternTables[field]
	if !ok || text == "" {
		return nil
	}

	var matches []Match
	for i, p := range patterns {
		for _, loc := range p.Re.FindAllStringSubmatchIndex(text, -1) {
			groups := expandGroups(text, loc)
			value := p.Normalize(groups)
			if value == "" {
				continue
			}
			matches = append(matches, Match{
				Value:        value,
				Raw:          text[loc[0]:loc[1]],
				Offset:       loc[0],
				PatternIndex: i,
			})
		}
	}
	return matches
}

// ExtractAll runs every supported field over the text.
func ExtractAll(text string) map[spec.FieldKey][]Match {
	out := make(map[spec.FieldKey][]Match)
	for _, field := range SupportedFields() {
		if ms := Extract(text, field); len(ms) > 0 {
			out[field] = ms
		}
	}
	return out
}

// Values flattens matches to their normalized candidate values.
func Values(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Value)
	}
	return out
}

// expandGroups converts a submatch index slice into group strings.
func expandGroups(text string, loc []int) []string {
	groups := make([]string, 0, len(loc)/2)
	for i := 0; i+1 < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, "")
			continue
		}
		groups = append(groups, text[loc[i]:loc[i+1]])
	}
	return groups
}
