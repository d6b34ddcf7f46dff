// Package consensus picks winning specification values from noisy candidate
// lists. Noisy sources (a transcript plus several scraped pages) repeat the
// true value more often than any single error, so frequency voting is a
// cheap, explainable de-hallucination step. Ties break to the earliest
// candidate, keeping results deterministic.
package consensus

import (
	"regexp"
	"strings"
)

// Resolve counts occurrences of each distinct normalized candidate and
// returns the most frequent one. On a tie the candidate that appeared
// earliest in the input wins. ok is false for an empty candidate list.
func Resolve(candidates []string) (winner string, ok bool) {
	type tally struct {
		count int
		first int
	}

	counts := make(map[string]*tally)
	order := make([]string, 0, len(candidates))

	for i, c := range candidates {
		norm := normalizeCandidate(c)
		if norm == "" {
			continue
		}
		t, seen := counts[norm]
		if !seen {
			counts[norm] = &tally{count: 1, first: i}
			order = append(order, norm)
			continue
		}
		t.count++
	}

	if len(order) == 0 {
		return "", false
	}

	best := order[0]
	for _, key := range order[1:] {
		if counts[key].count > counts[best].count {
			best = key
		}
	}
	return best, true
}

// normalizeCandidate collapses whitespace so "435  HP" and "435 HP" vote
// together. Case is preserved: the winning value is displayed as-is.
func normalizeCandidate(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}

// numeralRe finds the leading numeral of a winning value, used for unit
// proximity inference.
var numeralRe = regexp.MustCompile(`[\d,]+(?:\.\d+)?`)

// InferUnit finds which of the unit tokens appears nearest to the winning
// numeral in the source text, falling back to fallbackUnit when the numeral
// or every token is absent. Distance is measured in bytes between the end of
// the numeral and the start of the token.
func InferUnit(sourceText, winner string, unitTokens []string, fallbackUnit string) string {
	numeral := numeralRe.FindString(winner)
	if numeral == "" || sourceText == "" {
		return fallbackUnit
	}

	idx := strings.Index(sourceText, numeral)
	if idx < 0 {
		return fallbackUnit
	}
	anchor := idx + len(numeral)

	bestUnit := fallbackUnit
	bestDist := -1
	lower := strings.ToLower(sourceText)
	for _, token := range unitTokens {
		pos := strings.Index(lower[anchor:], strings.ToLower(token))
		if pos < 0 {
			continue
		}
		if bestDist < 0 || pos < bestDist {
			bestDist = pos
			bestUnit = token
		}
	}
	return bestUnit
}

// drivetrainVocab maps free-form drivetrain phrases to the fixed 4-symbol
// vocabulary. Keys are lowercase.
var drivetrainVocab = map[string]string{
	"awd":               "AWD",
	"4wd":               "4WD",
	"fwd":               "FWD",
	"rwd":               "RWD",
	"all-wheel drive":   "AWD",
	"all wheel drive":   "AWD",
	"four-wheel drive":  "4WD",
	"four wheel drive":  "4WD",
	"front-wheel drive": "FWD",
	"front wheel drive": "FWD",
	"rear-wheel drive":  "RWD",
	"rear wheel drive":  "RWD",
	"dual-motor":        "AWD",
	"dual motor":        "AWD",
	"四驱":                "AWD",
	"前驱":                "FWD",
	"后驱":                "RWD",
	"两驱":                "FWD",
}

// NormalizeDrivetrain maps a free-form drivetrain phrase onto
// {FWD, RWD, AWD, 4WD}. Unknown phrases return empty.
func NormalizeDrivetrain(phrase string) string {
	return drivetrainVocab[strings.ToLower(normalizeCandidate(phrase))]
}

// ResolveDrivetrain normalizes every candidate into the fixed vocabulary
// before voting, so "AWD", "all-wheel drive" and "四驱" count as one value.
func ResolveDrivetrain(candidates []string) (string, bool) {
	normalized := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if v := NormalizeDrivetrain(c); v != "" {
			normalized = append(normalized, v)
		}
	}
	return Resolve(normalized)
}
