// Package judge scores generated articles on a weighted quality rubric and
// drives a bounded improvement loop. The judge advises, it never blocks: a
// scoring failure passes the draft through rather than losing an article to
// a flaky grading model.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/c360studio/autopress/llm"
	"github.com/c360studio/autopress/spec"
)

// Dimension names one axis of the quality rubric.
type Dimension string

const (
	DimensionAccuracy     Dimension = "accuracy"
	DimensionEngagement   Dimension = "engagement"
	DimensionCompleteness Dimension = "completeness"
	DimensionReadability  Dimension = "readability"
	DimensionSEO          Dimension = "seo"
)

// weights must sum to 1.0. Accuracy dominates: an engaging article about
// the wrong numbers is worse than a dry one about the right ones.
var weights = map[Dimension]float64{
	DimensionAccuracy:     0.30,
	DimensionEngagement:   0.25,
	DimensionCompleteness: 0.20,
	DimensionReadability:  0.15,
	DimensionSEO:          0.10,
}

// neutralScore substitutes for a dimension the grading model failed to
// report. Neither rewarding nor punishing the draft for a grader omission.
const neutralScore = 5.0

// DefaultPassThreshold is the overall score at which a draft ships without
// an improvement pass.
const DefaultPassThreshold = 7.0

// DefaultMaxAttempts bounds the improvement loop. Two rewrites is where
// returns diminish and token cost does not.
const DefaultMaxAttempts = 2

// Verdict is one scoring pass over a draft. Feedback carries the grader's
// free-text note per dimension; Issues are critical problems and
// Suggestions the grader's top improvement ideas, both fed back into the
// revision prompt.
type Verdict struct {
	Scores      map[Dimension]float64 `json:"scores"`
	Feedback    map[Dimension]string  `json:"feedback,omitempty"`
	Overall     float64               `json:"overall"`
	Passed      bool                  `json:"passed"`
	Issues      []string              `json:"issues,omitempty"`
	Suggestions []string              `json:"suggestions,omitempty"`
	Err         string                `json:"error,omitempty"`
}

// LoopResult is the outcome of JudgeAndImprove. Attempts counts judging
// passes, so a draft that passes immediately used one attempt. Improved is
// true only when the returned content is an accepted revision rather than
// the original draft.
type LoopResult struct {
	Content  string    `json:"-"`
	Final    Verdict   `json:"final"`
	Attempts int       `json:"attempts"`
	Improved bool      `json:"improved"`
	History  []Verdict `json:"history,omitempty"`
}

// Judge scores drafts and rewrites the ones that fall short.
type Judge struct {
	client      *llm.Client
	threshold   float64
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Judge.
type Option func(*Judge)

// WithPassThreshold overrides the passing score.
func WithPassThreshold(v float64) Option {
	return func(j *Judge) { j.threshold = v }
}

// WithMaxAttempts overrides the improvement attempt bound.
func WithMaxAttempts(n int) Option {
	return func(j *Judge) { j.maxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Judge) { j.logger = logger }
}

// New builds a Judge around an LLM client.
func New(client *llm.Client, opts ...Option) *Judge {
	j := &Judge{
		client:      client,
		threshold:   DefaultPassThreshold,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Judge scores a draft against its source title and, when available, the
// resolved specification record the accuracy dimension should be checked
// against. Fails open: on any LLM or parse failure the verdict passes with
// the error recorded, so a broken grader never drops an article.
func (j *Judge) Judge(ctx context.Context, sourceTitle, content string, record spec.Record) Verdict {
	resp, err := j.client.Complete(ctx, llm.Request{
		Capability:  llm.CapabilityJudging,
		Messages:    judgeMessages(sourceTitle, content, record),
		Temperature: llm.Float(0.0),
	})
	if err != nil {
		j.logger.Warn("judge request failed, passing draft through", "error", err)
		return passThrough(fmt.Sprintf("judge request: %v", err))
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		j.logger.Warn("judge reply did not parse, passing draft through",
			"provider", resp.Provider, "error", err)
		return passThrough(fmt.Sprintf("parse verdict: %v", err))
	}

	verdict.Passed = verdict.Overall >= j.threshold
	return verdict
}

// JudgeAndImprove scores the draft and, while it fails, asks the writing
// model to address the judge's issues. The loop is bounded; each round
// revises the latest draft, but only the best-scoring draft seen ships. A
// revision that loses its heading or collapses below half the previous
// length is rejected and the loop stops.
func (j *Judge) JudgeAndImprove(ctx context.Context, sourceTitle, content string, record spec.Record) LoopResult {
	verdict := j.Judge(ctx, sourceTitle, content, record)
	result := LoopResult{
		Content:  content,
		Final:    verdict,
		Attempts: 1,
		History:  []Verdict{verdict},
	}

	current, currentVerdict := content, verdict
	best := verdict.Overall
	for round := 1; round <= j.maxAttempts && !result.Final.Passed; round++ {
		revised, err := j.improve(ctx, sourceTitle, current, currentVerdict)
		if err != nil {
			j.logger.Warn("improvement attempt failed, keeping current draft",
				"round", round, "error", err)
			break
		}

		reVerdict := j.Judge(ctx, sourceTitle, revised, record)
		result.Attempts++
		result.History = append(result.History, reVerdict)

		// The revision is the base for the next round even when it grades
		// worse; the best draft is tracked separately.
		current, currentVerdict = revised, reVerdict

		if reVerdict.Overall > best {
			best = reVerdict.Overall
			result.Content = revised
			result.Final = reVerdict
			result.Improved = true
			j.logger.Info("improved draft accepted",
				"round", round, "overall", reVerdict.Overall)
		} else {
			j.logger.Info("improved draft scored no better, keeping previous",
				"round", round, "overall", reVerdict.Overall, "best", best)
		}
	}

	return result
}

// improve asks the writing capability for a revision focused on the
// weakest dimensions and the judge's issues, then sanity-checks the reply.
func (j *Judge) improve(ctx context.Context, sourceTitle, content string, verdict Verdict) (string, error) {
	var b strings.Builder
	b.WriteString("Revise the article below. Focus on these weak areas:\n")
	for _, dim := range weakestDimensions(verdict.Scores, 3) {
		fmt.Fprintf(&b, "- %s (scored %.0f/10)", dim, verdict.Scores[dim])
		if fb := verdict.Feedback[dim]; fb != "" {
			b.WriteString(": ")
			b.WriteString(fb)
		}
		b.WriteString("\n")
	}
	if len(verdict.Issues) > 0 {
		b.WriteString("\nCritical issues to fix:\n")
		for _, issue := range verdict.Issues {
			b.WriteString("- ")
			b.WriteString(issue)
			b.WriteString("\n")
		}
	}
	if len(verdict.Suggestions) > 0 {
		b.WriteString("\nSuggested improvements:\n")
		for _, s := range verdict.Suggestions {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nKeep all factual claims and specification values exactly as they are; do not invent new facts.\n")
	b.WriteString("\nSource title: ")
	b.WriteString(sourceTitle)
	b.WriteString("\n\nArticle:\n\n")
	b.WriteString(content)
	b.WriteString("\n\nReply with the full revised article in markdown, nothing else.")

	resp, err := j.client.Complete(ctx, llm.Request{
		Capability: llm.CapabilityWriting,
		Messages: []llm.Message{
			{Role: "system", Content: "You are an automotive editor revising articles for publication."},
			{Role: "user", Content: b.String()},
		},
		Temperature: llm.Float(0.7),
	})
	if err != nil {
		return "", err
	}

	revised := strings.TrimSpace(resp.Content)
	if revised == "" {
		return "", fmt.Errorf("empty revision from %s", resp.Provider)
	}
	// A rewrite that drops the heading or collapses the article is a model
	// failure, not an improvement candidate.
	if !strings.Contains(revised, "#") {
		return "", fmt.Errorf("revision lost its heading")
	}
	if len(revised) < len(content)/2 {
		return "", fmt.Errorf("revision shrank from %d to %d bytes", len(content), len(revised))
	}
	return revised, nil
}

// weakestDimensions returns up to n dimensions ordered worst-first.
func weakestDimensions(scores map[Dimension]float64, n int) []Dimension {
	dims := make([]Dimension, 0, len(scores))
	for dim := range scores {
		dims = append(dims, dim)
	}
	sort.Slice(dims, func(i, j int) bool {
		if scores[dims[i]] != scores[dims[j]] {
			return scores[dims[i]] < scores[dims[j]]
		}
		return dims[i] < dims[j]
	})
	if len(dims) > n {
		dims = dims[:n]
	}
	return dims
}

// passThrough is the fail-open verdict: neutral scores, passed.
func passThrough(errMsg string) Verdict {
	scores := make(map[Dimension]float64, len(weights))
	overall := 0.0
	for dim, w := range weights {
		scores[dim] = neutralScore
		overall += neutralScore * w
	}
	return Verdict{
		Scores:  scores,
		Overall: overall,
		Passed:  true,
		Err:     errMsg,
	}
}

// parseVerdict extracts and normalizes the grader's JSON reply. Each
// dimension may arrive as a bare number or as {"score", "feedback"};
// graders that skip the feedback text still parse.
func parseVerdict(reply string) (Verdict, error) {
	raw := llm.ExtractJSON(reply)
	if raw == "" {
		return Verdict{}, fmt.Errorf("no JSON object in reply")
	}

	var parsed struct {
		Scores         map[string]json.RawMessage `json:"scores"`
		Issues         []string                   `json:"issues"`
		CriticalIssues []string                   `json:"critical_issues"`
		Suggestions    []string                   `json:"improvement_suggestions"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Verdict{}, fmt.Errorf("unmarshal: %w", err)
	}

	verdict := Verdict{
		Scores:      make(map[Dimension]float64, len(weights)),
		Feedback:    make(map[Dimension]string),
		Issues:      append(parsed.CriticalIssues, parsed.Issues...),
		Suggestions: parsed.Suggestions,
	}
	for dim, w := range weights {
		score := neutralScore
		if raw, ok := parsed.Scores[string(dim)]; ok {
			var n float64
			var structured struct {
				Score    float64 `json:"score"`
				Feedback string  `json:"feedback"`
			}
			if err := json.Unmarshal(raw, &n); err == nil {
				score = n
			} else if err := json.Unmarshal(raw, &structured); err == nil {
				score = structured.Score
				if structured.Feedback != "" {
					verdict.Feedback[dim] = structured.Feedback
				}
			}
		}
		score = clamp(score, 1, 10)
		verdict.Scores[dim] = score
		verdict.Overall += score * w
	}
	return verdict, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// judgeMessages builds the scoring prompt. The resolved spec record, when
// present, gives the grader ground truth for the accuracy dimension.
func judgeMessages(sourceTitle, content string, record spec.Record) []llm.Message {
	var b strings.Builder
	b.WriteString("Score the article below on five dimensions, each from 1 to 10:\n")
	b.WriteString("- accuracy: claims consistent with the source title and internally consistent\n")
	b.WriteString("- engagement: hooks the reader, varied sentence rhythm\n")
	b.WriteString("- completeness: covers specs, pricing, positioning, verdict\n")
	b.WriteString("- readability: clear structure, headings, short paragraphs\n")
	b.WriteString("- seo: title and headings carry the vehicle name naturally\n\n")
	b.WriteString("Reply with a single JSON object, one short feedback sentence per dimension:\n")
	b.WriteString(`{"scores": {"accuracy": {"score": 0, "feedback": "..."}, "engagement": {"score": 0, "feedback": "..."}, "completeness": {"score": 0, "feedback": "..."}, "readability": {"score": 0, "feedback": "..."}, "seo": {"score": 0, "feedback": "..."}}, "critical_issues": ["..."], "improvement_suggestions": ["..."]}`)
	b.WriteString("\n\nSource title: ")
	b.WriteString(sourceTitle)
	if len(record) > 0 {
		b.WriteString("\n\nVerified specifications (the article must agree with these):\n")
		for _, key := range spec.AllFields() {
			if record.Filled(key) {
				fmt.Fprintf(&b, "- %s: %s\n", key, record.Get(key))
			}
		}
	}
	b.WriteString("\n\nArticle:\n\n")
	b.WriteString(content)

	return []llm.Message{
		{Role: "system", Content: "You are a strict quality reviewer for automotive publications. Score honestly; 10 is reserved for flawless work."},
		{Role: "user", Content: b.String()},
	}
}
