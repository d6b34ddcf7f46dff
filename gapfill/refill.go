// Package gapfill asks a language model to recover spec fields the regex
// extractors missed, but only when coverage falls below a threshold. LLM
// answers are merged defensively: a model reply can fill an empty field but
// can never overwrite a value the deterministic extractors already agreed
// on.
package gapfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/autopress/llm"
	"github.com/c360studio/autopress/spec"
)

// DefaultThreshold is the coverage percentage below which a refill runs.
const DefaultThreshold = 70.0

// Excerpt limits keep the prompt inside small-model context windows. The
// generated article restates the specs compactly, so it gets the larger
// share.
const (
	articleExcerptLen    = 4000
	transcriptExcerptLen = 3000
)

// Result describes one refill pass.
type Result struct {
	Triggered      bool          `json:"triggered"`
	CoverageBefore spec.Coverage `json:"coverage_before"`
	CoverageAfter  spec.Coverage `json:"coverage_after"`
	FieldsFilled   []spec.FieldKey `json:"fields_filled,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	Err            string        `json:"error,omitempty"`
}

// Filler runs coverage-gated LLM refills.
type Filler struct {
	client    *llm.Client
	threshold float64
	logger    *slog.Logger
}

// Option configures a Filler.
type Option func(*Filler)

// WithThreshold overrides the coverage threshold.
func WithThreshold(pct float64) Option {
	return func(f *Filler) { f.threshold = pct }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filler) { f.logger = logger }
}

// NewFiller builds a Filler around an LLM client.
func NewFiller(client *llm.Client, opts ...Option) *Filler {
	f := &Filler{
		client:    client,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Refill fills missing fields in record from the generated article and the
// transcript when coverage is below the threshold. The record is mutated
// in place, only through SetIfUnfilled. Refill fails open: any LLM or
// parse failure is recorded in the result and the record is left as it
// was.
func (f *Filler) Refill(ctx context.Context, record spec.Record, article, transcript string) Result {
	before := spec.CalculateCoverage(record)
	result := Result{
		CoverageBefore: before,
		CoverageAfter:  before,
	}

	if before.Percent >= f.threshold {
		f.logger.Debug("gap fill skipped, coverage above threshold",
			"coverage", before.Percent, "threshold", f.threshold)
		return result
	}
	result.Triggered = true

	resp, err := f.client.Complete(ctx, llm.Request{
		Capability:  llm.CapabilityExtraction,
		Messages:    buildMessages(before.Missing, article, transcript),
		Temperature: llm.Float(0.1),
	})
	if err != nil {
		result.Err = err.Error()
		f.logger.Warn("gap fill request failed, keeping extracted record", "error", err)
		return result
	}
	result.Provider = resp.Provider

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		result.Err = "no JSON object in model reply"
		f.logger.Warn("gap fill reply had no parseable JSON", "provider", resp.Provider)
		return result
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		result.Err = fmt.Sprintf("parse model reply: %v", err)
		f.logger.Warn("gap fill reply did not parse", "provider", resp.Provider, "error", err)
		return result
	}

	for key, value := range fields {
		fk := spec.FieldKey(key)
		if record.SetIfUnfilled(fk, value) {
			result.FieldsFilled = append(result.FieldsFilled, fk)
		}
	}

	result.CoverageAfter = spec.CalculateCoverage(record)
	f.logger.Info("gap fill complete",
		"provider", resp.Provider,
		"filled", len(result.FieldsFilled),
		"coverage_before", before.Percent,
		"coverage_after", result.CoverageAfter.Percent)
	return result
}

// buildMessages assembles the extraction prompt. Only the missing fields
// are named so the model cannot wander into fields that are already
// settled.
func buildMessages(missing []spec.FieldKey, article, transcript string) []llm.Message {
	var b strings.Builder
	b.WriteString("Extract the following vehicle specification fields from the source material below.\n")
	b.WriteString("Reply with a single JSON object mapping field keys to values.\n")
	b.WriteString("Use the exact value from the text, including units. ")
	b.WriteString("If a field is not stated in the sources, omit it entirely. Never guess.\n\n")
	b.WriteString("Fields to find:\n")
	for _, key := range missing {
		fmt.Fprintf(&b, "- %s: %s\n", key, spec.Describe(key))
	}

	if a := truncate(article, articleExcerptLen); a != "" {
		b.WriteString("\n--- ARTICLE ---\n")
		b.WriteString(a)
		b.WriteString("\n")
	}
	if t := truncate(transcript, transcriptExcerptLen); t != "" {
		b.WriteString("\n--- TRANSCRIPT ---\n")
		b.WriteString(t)
		b.WriteString("\n")
	}

	return []llm.Message{
		{
			Role:    "system",
			Content: "You are a precise data extractor for vehicle specifications. You only report values that appear verbatim in the provided sources.",
		},
		{Role: "user", Content: b.String()},
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max]
}
