package llm

import (
	"regexp"
	"strings"
)

// LLM replies rarely contain clean JSON: they wrap it in markdown fences,
// add commentary before and after, sprinkle // comments and leave trailing
// commas. ExtractJSON digs the first balanced JSON object out of all that.

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the first balanced JSON object found in content,
// cleaned of JS-style comments and trailing commas. Returns empty when no
// object is present.
func ExtractJSON(content string) string {
	return extractBalanced(content, '{', '}')
}

// ExtractJSONArray returns the first balanced JSON array found in content.
func ExtractJSONArray(content string) string {
	return extractBalanced(content, '[', ']')
}

func extractBalanced(content string, open, close byte) string {
	// Prefer the inside of a markdown code fence when one exists.
	if m := fenceRe.FindStringSubmatch(content); len(m) > 1 && strings.IndexByte(m[1], open) >= 0 {
		content = m[1]
	}

	raw := scanBalanced(content, open, close)
	if raw == "" {
		return ""
	}
	return cleanJSON(raw)
}

// scanBalanced finds the first balanced open..close span, tracking string
// literals so braces inside values don't confuse the depth count.
func scanBalanced(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == open:
			depth++
		case !inString && ch == close:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// cleanJSON strips // comments outside string values and trailing commas,
// both common LLM artifacts that break encoding/json.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaRe.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment removes a // comment from a line unless the slashes sit
// inside a string value (e.g. a URL).
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
